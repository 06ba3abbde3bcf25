// Package imagecache - локальный кэш картинок, которые сгенерировал ассистент.
//
// Файл кладётся в <dir>/<имя удалённого файла>.png. Инвалидации и дедупликации
// между вызовами нет: повторная загрузка того же файла просто перезапишет его.
// Запись без блокировок - параллельные вызовы с одинаковым именем гоняются,
// побеждает последний.
package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilkoid/poncho-assistants/pkg/s3storage"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// Cache пишет картинки на диск и (опционально) зеркалирует их в S3.
type Cache struct {
	dir    string
	mirror s3storage.Uploader
}

// New создаёт кэш. mirror может быть nil.
func New(dir string, mirror s3storage.Uploader) *Cache {
	return &Cache{dir: dir, mirror: mirror}
}

// Dir возвращает каталог кэша.
func (c *Cache) Dir() string {
	return c.dir
}

// PathFor возвращает путь файла для удалённого имени.
//
// Имя режется до базового (без каталогов), чтобы удалённое имя не вывело запись
// за пределы кэша.
func (c *Cache) PathFor(remoteName string) (string, error) {
	base := filepath.Base(strings.TrimSpace(remoteName))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid remote file name '%s'", remoteName)
	}
	return filepath.Join(c.dir, base+".png"), nil
}

// Store сохраняет поток r под именем remoteName и возвращает путь и байты файла.
//
// Каталог создаётся при отсутствии. Ошибка зеркала логируется и не мешает
// вернуть локальный результат.
func (c *Cache) Store(ctx context.Context, remoteName string, r io.Reader) (string, []byte, error) {
	path, err := c.PathFor(remoteName)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create cache dir %s: %w", c.dir, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", nil, fmt.Errorf("failed to download image %s: %w", remoteName, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", nil, fmt.Errorf("failed to write file %s: %w", path, err)
	}

	utils.Debug("Image cached", "path", path, "bytes", buf.Len())

	if c.mirror != nil {
		if err := c.mirror.Upload(ctx, filepath.Base(path), buf.Bytes(), utils.MimePNG); err != nil {
			utils.Warn("Image mirror upload failed", "path", path, "error", err)
		}
	}

	return path, buf.Bytes(), nil
}
