package assistant

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// ImageStore сохраняет скачанную картинку и возвращает путь и байты.
// Реализуется pkg/imagecache.Cache.
type ImageStore interface {
	Store(ctx context.Context, remoteName string, r io.Reader) (string, []byte, error)
}

// Renderer собирает текст ответа из частей сообщения.
type Renderer struct {
	images   ImageStore
	maxWidth int
	quality  int
	metrics  *Metrics
}

// maxWidth > 0 ужимает картинки шире maxWidth перед встраиванием (JPEG с quality).
// maxWidth > 0 ужимает картинку перед встраиванием (JPEG с quality).
func NewRenderer(images ImageStore, maxWidth, quality int) *Renderer {
	return &Renderer{images: images, maxWidth: maxWidth, quality: quality}
}

// Render склеивает части сообщения в строку в исходном порядке.
//
// Ошибки скачивания и записи картинок логируются и проглатываются:
// ответ просто остаётся без этой картинки.
func (r *Renderer) Render(ctx context.Context, api API, msg openai.Message) string {
	var sb strings.Builder
	// одна картинка за вызов скачивается один раз
	rendered := make(map[string]string)

	for _, part := range ParseContent(msg.Content) {
		switch c := part.(type) {
		case TextContent:
			sb.WriteString(c.Text)

		case ImageFileContent:
			tag, ok := rendered[c.FileID]
			if !ok {
				tag = r.renderImageFile(ctx, api, c.FileID)
				rendered[c.FileID] = tag
			}
			sb.WriteString(tag)

		case ImageURLContent:
			sb.WriteString(imgTag(c.URL, "image"))

		case UnknownContent:
			utils.Warn("Unsupported message content skipped", "message_id", msg.ID, "type", c.Type)
		}
	}
	return sb.String()
}

// renderImageFile скачивает файл, кладёт в кэш и возвращает <img> с data URI.
// Пустая строка - картинку встроить не удалось.
func (r *Renderer) renderImageFile(ctx context.Context, api API, fileID string) string {
	if r.images == nil {
		utils.Warn("Image skipped, no image cache configured", "file_id", fileID)
		r.metrics.RecordImage("skipped")
		return ""
	}

	meta, err := api.GetFile(ctx, fileID)
	if err != nil {
		utils.Error("Failed to fetch image metadata", "file_id", fileID, "error", err)
		r.metrics.RecordImage("failed")
		return ""
	}
	name := meta.FileName
	if name == "" {
		name = fileID
	}

	body, err := api.DownloadFile(ctx, fileID)
	if err != nil {
		utils.Error("Failed to download image", "file_id", fileID, "error", err)
		r.metrics.RecordImage("failed")
		return ""
	}
	defer body.Close()

	path, data, err := r.images.Store(ctx, name, body)
	if err != nil {
		utils.Error("Failed to cache image", "file_id", fileID, "error", err)
		r.metrics.RecordImage("failed")
		return ""
	}

	mime, embed := utils.PrepareForEmbed(data, r.maxWidth, r.quality)
	utils.Debug("Image rendered", "file_id", fileID, "path", path, "mime", mime, "bytes", len(embed))
	r.metrics.RecordImage("cached")
	return imgTag(utils.DataURI(mime, embed), name)
}

func imgTag(src, alt string) string {
	return fmt.Sprintf(`<img src="%s" alt="%s" style="max-width:100%%" />`,
		html.EscapeString(src), html.EscapeString(alt))
}
