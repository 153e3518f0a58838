// Package xmltv writes electronic program guide data in the XMLTV format.
package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Channel is an XMLTV channel definition.
type Channel struct {
	ID          string
	DisplayName string
	Icon        string
	URL         string
}

// Programme is a single XMLTV programme entry.
type Programme struct {
	Start       time.Time
	Stop        time.Time
	Channel     string
	Title       string
	SubTitle    string
	Description string
	Category    string
	EpisodeNum  string
	Language    string
}

// Writer streams an XMLTV document to an io.Writer. Channels must be
// written before programmes, per the XMLTV DTD.
type Writer struct {
	w             io.Writer
	generatorName string
	headerWritten bool
	channelsDone  bool
}

// NewWriter creates a Writer that stamps documents with the given
// generator name.
func NewWriter(w io.Writer, generatorName string) *Writer {
	if generatorName == "" {
		generatorName = "castarr"
	}
	return &Writer{w: w, generatorName: generatorName}
}

func (w *Writer) writeHeader() error {
	if w.headerWritten {
		return nil
	}
	if _, err := fmt.Fprintf(w.w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<tv generator-info-name=%q>\n", w.generatorName); err != nil {
		return fmt.Errorf("writing XMLTV header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteChannel writes one channel definition.
func (w *Writer) WriteChannel(ch *Channel) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if w.channelsDone {
		return fmt.Errorf("channel %q written after programmes", ch.ID)
	}

	if _, err := fmt.Fprintf(w.w, "  <channel id=%q>\n    <display-name>%s</display-name>\n", escape(ch.ID), escape(ch.DisplayName)); err != nil {
		return fmt.Errorf("writing channel: %w", err)
	}
	if ch.Icon != "" {
		if _, err := fmt.Fprintf(w.w, "    <icon src=%q/>\n", escape(ch.Icon)); err != nil {
			return err
		}
	}
	if ch.URL != "" {
		if _, err := fmt.Fprintf(w.w, "    <url>%s</url>\n", escape(ch.URL)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.w, "  </channel>")
	return err
}

// WriteProgramme writes one programme entry.
func (w *Writer) WriteProgramme(p *Programme) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	w.channelsDone = true

	lang := p.Language
	if lang == "" {
		lang = "en"
	}

	if _, err := fmt.Fprintf(w.w, "  <programme start=%q stop=%q channel=%q>\n",
		formatTime(p.Start), formatTime(p.Stop), escape(p.Channel)); err != nil {
		return fmt.Errorf("writing programme: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "    <title lang=%q>%s</title>\n", lang, escape(p.Title)); err != nil {
		return err
	}
	if p.SubTitle != "" {
		if _, err := fmt.Fprintf(w.w, "    <sub-title lang=%q>%s</sub-title>\n", lang, escape(p.SubTitle)); err != nil {
			return err
		}
	}
	if p.Description != "" {
		if _, err := fmt.Fprintf(w.w, "    <desc lang=%q>%s</desc>\n", lang, escape(p.Description)); err != nil {
			return err
		}
	}
	if p.Category != "" {
		if _, err := fmt.Fprintf(w.w, "    <category lang=%q>%s</category>\n", lang, escape(p.Category)); err != nil {
			return err
		}
	}
	if p.EpisodeNum != "" {
		if _, err := fmt.Fprintf(w.w, "    <episode-num system=\"onscreen\">%s</episode-num>\n", escape(p.EpisodeNum)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.w, "  </programme>")
	return err
}

// Close terminates the document. The writer is unusable afterwards.
func (w *Writer) Close() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w.w, "</tv>")
	return err
}

// formatTime renders a time in XMLTV form, normalized to UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format("20060102150405 +0000")
}

type appendWriter []byte

func (a *appendWriter) Write(p []byte) (int, error) {
	*a = append(*a, p...)
	return len(p), nil
}

// escape escapes XML special characters in element content and attributes.
func escape(s string) string {
	var buf appendWriter
	_ = xml.EscapeText(&buf, []byte(s))
	return string(buf)
}
