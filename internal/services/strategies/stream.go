package strategies

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/ternarybob/capto/internal/httpclient"
	"github.com/ternarybob/capto/internal/interfaces"
)

const streamChunkSize = 8192

// streamToFile downloads a media URL into destPath with chunked progress
// reporting. A cancelled context aborts the copy and removes the partial
// file.
func streamToFile(ctx context.Context, client *http.Client, url, userAgent, destPath string, onProgress interfaces.ProgressFunc) error {
	req, err := httpclient.NewPageRequest(url, userAgent)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting media stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	total := resp.ContentLength
	var done int64
	buf := make([]byte, streamChunkSize)

	for {
		if ctx.Err() != nil {
			out.Close()
			os.Remove(destPath)
			return ctx.Err()
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(destPath)
				return fmt.Errorf("writing media stream: %w", writeErr)
			}
			done += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(destPath)
			return fmt.Errorf("reading media stream: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}
