package assistant

import (
	openai "github.com/sashabaranov/go-openai"
)

// Content - часть содержимого сообщения ассистента.
//
// Варианты: TextContent, ImageFileContent, ImageURLContent, UnknownContent.
// Разбор делается один раз на границе с API, дальше работаем только с вариантами.
type Content interface {
	Kind() string
}

// TextContent - текстовая часть. Аннотации (цитаты) не обрабатываются.
type TextContent struct {
	Text string
}

// ImageFileContent - картинка, лежащая в файлах OpenAI.
type ImageFileContent struct {
	FileID string
}

// ImageURLContent - картинка по внешнему URL.
type ImageURLContent struct {
	URL string
}

// UnknownContent - тип, который узел не умеет рендерить.
type UnknownContent struct {
	Type string
}

func (TextContent) Kind() string      { return "text" }
func (ImageFileContent) Kind() string { return "image_file" }
func (ImageURLContent) Kind() string  { return "image_url" }
func (u UnknownContent) Kind() string { return u.Type }

// ParseContent переводит content сообщения в варианты, сохраняя порядок.
//
// Часть с известным type, но без тела (text без text, image_file без file_id)
// считается неизвестной.
func ParseContent(parts []openai.MessageContent) []Content {
	out := make([]Content, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Type == "text" && p.Text != nil:
			out = append(out, TextContent{Text: p.Text.Value})
		case p.Type == "image_file" && p.ImageFile != nil && p.ImageFile.FileID != "":
			out = append(out, ImageFileContent{FileID: p.ImageFile.FileID})
		case p.Type == "image_url" && p.ImageURL != nil && p.ImageURL.URL != "":
			out = append(out, ImageURLContent{URL: p.ImageURL.URL})
		default:
			out = append(out, UnknownContent{Type: p.Type})
		}
	}
	return out
}

// latestAssistantMessage выбирает самое свежее сообщение ассистента.
// messages упорядочены новые первыми, как их отдаёт API.
func latestAssistantMessage(messages []openai.Message) (openai.Message, bool) {
	for _, m := range messages {
		if m.Role == openai.ChatMessageRoleAssistant {
			return m, true
		}
	}
	return openai.Message{}, false
}
