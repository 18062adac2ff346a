// Package dataset inspects a local training dataset before it is uploaded:
// metadata.csv plus a directory of audio clips.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"lukechampine.com/blake3"

	"piper-console/pkg/csvcheck"
)

const MetadataFile = "metadata.csv"

var audioExt = map[string]bool{".wav": true, ".mp3": true, ".flac": true}

// Fingerprint is the hex BLAKE3-256 digest of r.
func Fingerprint(r io.Reader) (string, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Fingerprint(f)
}

// AudioFiles lists the audio clips directly inside dir, sorted, as full paths.
func AudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read audio dir: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() && audioExt[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

type Report struct {
	Dir         string
	AudioDir    string
	Metadata    string // path, "" when absent
	Check       csvcheck.Result
	AudioFiles  []string
	SizeBytes   int64
	Fingerprint string
	// Missing lists metadata ids without a clip; Orphans lists clips
	// without a metadata row.
	Missing []string
	Orphans []string
}

func (r *Report) SizeMB() decimal.Decimal {
	return decimal.NewFromInt(r.SizeBytes).Div(decimal.NewFromInt(1 << 20)).Round(2)
}

// Ready reports the first reason the dataset cannot be trained on.
func (r *Report) Ready() error {
	if r.Metadata == "" {
		return errors.New("metadata.csv not found")
	}
	if err := r.Check.Err(); err != nil {
		return err
	}
	if len(r.AudioFiles) == 0 {
		return errors.New("no audio files found")
	}
	return nil
}

// Inspect reads dir laid out like the server's training_data/<model>:
// metadata.csv next to a wav/ directory. Clips placed directly in dir are
// accepted when wav/ is absent.
func Inspect(dir string) (*Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inspect dataset: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inspect dataset: %s is not a directory", dir)
	}
	r := &Report{Dir: dir, AudioDir: dir}
	if wav := filepath.Join(dir, "wav"); isDir(wav) {
		r.AudioDir = wav
	}
	if r.AudioFiles, err = AudioFiles(r.AudioDir); err != nil {
		return nil, err
	}

	h := blake3.New(32, nil)
	var meta []byte
	if p := filepath.Join(dir, MetadataFile); fileExists(p) {
		r.Metadata = p
		if meta, err = os.ReadFile(p); err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		r.SizeBytes += int64(len(meta))
		h.Write(meta)
	}
	r.Check = csvcheck.Validate(string(meta))

	for _, p := range r.AudioFiles {
		n, err := hashFile(h, p)
		if err != nil {
			return nil, err
		}
		r.SizeBytes += n
	}
	r.Fingerprint = hex.EncodeToString(h.Sum(nil))
	r.Missing, r.Orphans = crossCheck(metadataIDs(meta), r.AudioFiles)
	return r, nil
}

func hashFile(h io.Writer, p string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()
	_, _ = io.WriteString(h, filepath.Base(p))
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, fmt.Errorf("hash %s: %w", p, err)
	}
	return n, nil
}

func metadataIDs(meta []byte) []string {
	ids := []string{}
	sc := bufio.NewScanner(bytes.NewReader(meta))
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		id, _, ok := strings.Cut(ln, "|")
		if id = strings.TrimSpace(id); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func crossCheck(ids, files []string) (missing, orphans []string) {
	stems := map[string]bool{}
	for _, f := range files {
		base := filepath.Base(f)
		stems[strings.TrimSuffix(base, filepath.Ext(base))] = true
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
		if !stems[id] {
			missing = append(missing, id)
		}
	}
	for _, f := range files {
		base := filepath.Base(f)
		if stem := strings.TrimSuffix(base, filepath.Ext(base)); !seen[stem] {
			orphans = append(orphans, base)
		}
	}
	return missing, orphans
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
