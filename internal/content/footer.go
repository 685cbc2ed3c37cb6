package content

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const DefaultFooterMessage = "Nie napalaj się na zbyt wiele"

type footerFile struct {
	Messages []string `yaml:"messages"`
}

// LoadFooterMessages reads other/footer-messages.yaml. Any problem with the
// file falls back to the single default message.
func (l *Library) LoadFooterMessages() {
	path := filepath.Join(l.root, "other", "footer-messages.yaml")
	msgs := []string{DefaultFooterMessage}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		l.logger.Warn("read footer messages failed", "path", path, "error", err)
	default:
		var f footerFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			l.logger.Warn("parse footer messages failed", "path", path, "error", err)
			break
		}
		var kept []string
		for _, m := range f.Messages {
			if m != "" {
				kept = append(kept, m)
			}
		}
		if len(kept) > 0 {
			msgs = kept
		}
	}

	l.mu.Lock()
	l.footer = msgs
	l.mu.Unlock()
}

// FooterMessages returns a copy of the loaded messages.
func (l *Library) FooterMessages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.footer) == 0 {
		return []string{DefaultFooterMessage}
	}
	return append([]string(nil), l.footer...)
}

func (l *Library) RandomFooterMessage() string {
	msgs := l.FooterMessages()
	return msgs[l.rand(len(msgs))]
}
