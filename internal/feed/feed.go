// Package feed reads notifications as JSON lines, one object per line, and
// posts them to the listener. It lets a platform bridge pipe events into
// the daemon without going through HTTP.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

const maxLine = 64 * 1024

// Poster accepts notifications. *listener.Listener implements it.
type Poster interface {
	Post(n domain.Notification) error
}

// Stats summarizes one feed run.
type Stats struct {
	Posted  int
	Skipped int
}

// Read posts every well-formed line of r until EOF or ctx is done.
// Malformed lines, including lines longer than 64 KiB, are logged and
// skipped; a Post error stops the feed.
func Read(ctx context.Context, r io.Reader, poster Poster, log *logger.Logger) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(r, 4096)

	line := 0
	for {
		raw, tooLong, rerr := readLine(br)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return st, fmt.Errorf("feed: reading: %w", rerr)
		}
		if len(raw) > 0 || tooLong {
			line++
			if err := ctx.Err(); err != nil {
				return st, err
			}
			if err := post(line, raw, tooLong, poster, log, &st); err != nil {
				return st, err
			}
		}
		if rerr != nil {
			break
		}
	}
	log.Info("feed: done, %d posted, %d skipped", st.Posted, st.Skipped)
	return st, nil
}

// post decodes one line and hands it to poster.
func post(line int, raw []byte, tooLong bool, poster Poster, log *logger.Logger, st *Stats) error {
	if tooLong {
		log.Warn("feed: line %d: longer than %d bytes", line, maxLine)
		st.Skipped++
		return nil
	}
	text := strings.TrimSpace(string(raw))
	if text == "" || strings.HasPrefix(text, "#") {
		return nil
	}

	var n domain.Notification
	if err := json.Unmarshal([]byte(text), &n); err != nil {
		log.Warn("feed: line %d: %v", line, err)
		st.Skipped++
		return nil
	}
	if strings.TrimSpace(n.PackageName) == "" || strings.TrimSpace(n.ChannelID) == "" {
		log.Warn("feed: line %d: package_name and channel_id are required", line)
		st.Skipped++
		return nil
	}
	if err := poster.Post(n); err != nil {
		return fmt.Errorf("feed: line %d: %w", line, err)
	}
	st.Posted++
	return nil
}

// readLine returns the next line including its newline. The rest of a line
// longer than maxLine is consumed and dropped, and tooLong is set.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong && len(line)+len(chunk) > maxLine {
			tooLong, line = true, nil
		}
		if !tooLong {
			line = append(line, chunk...)
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, tooLong, err
		}
	}
}

// ReadPath reads the feed from a file, or from stdin when path is "-".
func ReadPath(ctx context.Context, path string, poster Poster, log *logger.Logger) (Stats, error) {
	if path == "-" {
		return Read(ctx, os.Stdin, poster, log)
	}
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("feed: %w", err)
	}
	defer f.Close()
	return Read(ctx, f, poster, log)
}
