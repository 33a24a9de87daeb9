package extract

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// extractMedia transcribes an audio/video file. Files above the size ceiling
// are skipped without calling the transcription service, and a transcription
// failure degrades to a skipped result rather than failing the job. Either way
// the file ends up registered as a document.
func (e *Extractor) extractMedia(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat media file: %w", err)
	}
	if info.Size() > e.maxMediaBytes {
		note := fmt.Sprintf("media file is %d bytes, above the %d MB transcription ceiling",
			info.Size(), e.maxMediaBytes/(1024*1024))
		e.logger.Info("skipping oversized media file", zap.String("path", path), zap.Int64("size", info.Size()))
		return Result{Skipped: true, Note: note}, nil
	}
	if e.transcriber == nil {
		return Result{Skipped: true, Note: "transcription not configured"}, nil
	}
	text, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		e.logger.Warn("transcription failed, registering without content",
			zap.String("path", path), zap.Error(err))
		return Result{Skipped: true, Note: fmt.Sprintf("transcription failed: %v", err)}, nil
	}
	return Result{Text: text}, nil
}
