package telegram

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mymmrac/telego"
)

const (
	defaultMediaMaxBytes int64 = 20 * 1024 * 1024
	downloadMaxRetries         = 3
	docMaxChars                = 200_000
)

// MediaInfo describes a downloaded media file.
type MediaInfo struct {
	Type        string // "image", "video", "audio", "voice", "document", "animation"
	FilePath    string
	FileID      string
	ContentType string
	FileName    string
	FileSize    int64
}

// resolveMedia downloads every media item attached to a Telegram message.
// Audio/voice transcription is out of scope here; they are tagged but not
// transcribed.
func (c *Channel) resolveMedia(ctx context.Context, msg *telego.Message) []MediaInfo {
	var results []MediaInfo
	maxBytes := c.config.MediaMaxBytes
	if maxBytes == 0 {
		maxBytes = defaultMediaMaxBytes
	}

	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		if filePath, err := c.downloadMedia(ctx, photo.FileID, maxBytes); err != nil {
			slog.Warn("failed to download photo", "file_id", photo.FileID, "error", err)
		} else {
			results = append(results, MediaInfo{Type: "image", FilePath: filePath, FileID: photo.FileID, ContentType: "image/jpeg", FileSize: int64(photo.FileSize)})
		}
	}
	if msg.Video != nil {
		results = append(results, MediaInfo{Type: "video", FileID: msg.Video.FileID, ContentType: msg.Video.MimeType, FileName: msg.Video.FileName, FileSize: int64(msg.Video.FileSize)})
	}
	if msg.Animation != nil {
		results = append(results, MediaInfo{Type: "animation", FileID: msg.Animation.FileID, ContentType: msg.Animation.MimeType, FileName: msg.Animation.FileName, FileSize: int64(msg.Animation.FileSize)})
	}
	if msg.Audio != nil {
		if filePath, err := c.downloadMedia(ctx, msg.Audio.FileID, maxBytes); err != nil {
			slog.Warn("failed to download audio", "file_id", msg.Audio.FileID, "error", err)
		} else {
			results = append(results, MediaInfo{Type: "audio", FilePath: filePath, FileID: msg.Audio.FileID, ContentType: msg.Audio.MimeType, FileName: msg.Audio.FileName, FileSize: int64(msg.Audio.FileSize)})
		}
	}
	if msg.Voice != nil {
		if filePath, err := c.downloadMedia(ctx, msg.Voice.FileID, maxBytes); err != nil {
			slog.Warn("failed to download voice", "file_id", msg.Voice.FileID, "error", err)
		} else {
			results = append(results, MediaInfo{Type: "voice", FilePath: filePath, FileID: msg.Voice.FileID, ContentType: msg.Voice.MimeType, FileSize: int64(msg.Voice.FileSize)})
		}
	}
	if msg.Document != nil {
		if filePath, err := c.downloadMedia(ctx, msg.Document.FileID, maxBytes); err != nil {
			slog.Warn("failed to download document", "file_id", msg.Document.FileID, "error", err)
		} else {
			results = append(results, MediaInfo{Type: "document", FilePath: filePath, FileID: msg.Document.FileID, ContentType: msg.Document.MimeType, FileName: msg.Document.FileName, FileSize: int64(msg.Document.FileSize)})
		}
	}
	return results
}

// downloadMedia fetches a file from Telegram by file_id with retry.
func (c *Channel) downloadMedia(ctx context.Context, fileID string, maxBytes int64) (string, error) {
	var file *telego.File
	var err error
	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("get file info after %d attempts: %w", downloadMaxRetries, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxBytes {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.config.Token, file.FilePath)
	resp, err := http.Get(downloadURL)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	ext := filepath.Ext(file.FilePath)
	if ext == "" {
		ext = ".bin"
	}
	tmpFile, err := os.CreateTemp("", "goclaw_media_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmpFile.Close()

	written, err := io.Copy(tmpFile, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("save file: %w", err)
	}
	if written > maxBytes {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("file exceeds max size during download: %d bytes", written)
	}
	return tmpFile.Name(), nil
}

// buildMediaTags renders placeholder tags the LLM can see alongside any text.
func buildMediaTags(mediaList []MediaInfo) string {
	var tags []string
	for _, m := range mediaList {
		switch m.Type {
		case "image":
			tags = append(tags, "<media:image>")
		case "video", "animation":
			tags = append(tags, "<media:video>")
		case "audio":
			tags = append(tags, "<media:audio>")
		case "voice":
			tags = append(tags, "<media:voice>")
		case "document":
			tags = append(tags, "<media:document>")
		}
	}
	return strings.Join(tags, "\n")
}

var textExtensions = map[string]string{
	".txt": "text/plain", ".md": "text/markdown", ".csv": "text/csv",
	".json": "application/json", ".yaml": "text/yaml", ".yml": "text/yaml",
	".xml": "text/xml", ".log": "text/plain", ".go": "text/x-go",
	".py": "text/x-python", ".js": "text/javascript", ".ts": "text/typescript",
}

// extractDocumentContent reads a text document and wraps it for the LLM,
// truncating at docMaxChars. Binary formats get a placeholder instead.
func extractDocumentContent(filePath, fileName string) (string, error) {
	if filePath == "" {
		return fmt.Sprintf("[File: %s — download failed]", fileName), nil
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	mime, isText := textExtensions[ext]
	if !isText {
		return fmt.Sprintf("[File: %s — binary format not supported, only text files can be processed]", fileName), nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", fileName, err)
	}
	content := string(data)
	if len(content) > docMaxChars {
		content = content[:docMaxChars] + "\n... [truncated]"
	}
	return fmt.Sprintf("<file name=%q mime=%q>\n%s\n</file>", fileName, mime, html.EscapeString(content)), nil
}
