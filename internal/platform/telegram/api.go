// ABOUTME: Wire structs for the subset of the Bot API courier uses.
// ABOUTME: Field names follow the Telegram JSON exactly.

package telegram

import "encoding/json"

// apiResponse is the Bot API envelope around every result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type apiUpdate struct {
	UpdateID      int64             `json:"update_id"`
	Message       *apiMessage       `json:"message"`
	EditedMessage *apiMessage       `json:"edited_message"`
	CallbackQuery *apiCallbackQuery `json:"callback_query"`
}

type apiMessage struct {
	MessageID       int64        `json:"message_id"`
	Chat            apiChat      `json:"chat"`
	MessageThreadID int64        `json:"message_thread_id"`
	From            *apiUser     `json:"from"`
	Text            string       `json:"text"`
	Caption         string       `json:"caption"`
	ReplyToMessage  *apiMessage  `json:"reply_to_message"`
	Photo           []apiPhoto   `json:"photo"`
	Document        *apiDocument `json:"document"`
	Audio           *apiDocument `json:"audio"`
	Voice           *apiDocument `json:"voice"`
	Video           *apiDocument `json:"video"`
}

type apiChat struct {
	ID int64 `json:"id"`
}

type apiUser struct {
	ID int64 `json:"id"`
}

type apiPhoto struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type apiDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type apiCallbackQuery struct {
	ID      string      `json:"id"`
	From    *apiUser    `json:"from"`
	Message *apiMessage `json:"message"`
	Data    string      `json:"data"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}
