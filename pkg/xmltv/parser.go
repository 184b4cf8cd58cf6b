// Package xmltv provides streaming XMLTV parsing and timestamp handling.
// It supports the de facto XMLTV format for electronic program guide data.
package xmltv

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"
	"golang.org/x/net/html/charset"
)

// DefaultLang is assumed when a programme title carries no lang attribute.
const DefaultLang = "en"

// Programme represents a single programme entry in an XMLTV file. Start and
// Stop carry the raw attribute strings; callers decide how strictly to parse
// them via ParseTime.
type Programme struct {
	Channel     string
	Start       string
	Stop        string
	Title       string
	Description string
	Category    string
	EpisodeNum  string
	IconURL     string
	Lang        string
}

// Channel represents a channel definition in an XMLTV file.
type Channel struct {
	ID          string
	DisplayName string
	IconURL     string
}

// MalformedDocumentError reports an XML well-formedness failure with the
// line it occurred on when the decoder supplies one.
type MalformedDocumentError struct {
	Line int64
	Err  error
}

func (e *MalformedDocumentError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed XMLTV document at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed XMLTV document: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// wrapDecodeError converts a decoder error into a MalformedDocumentError.
func wrapDecodeError(err error) error {
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &MalformedDocumentError{Line: int64(syntaxErr.Line), Err: err}
	}
	return &MalformedDocumentError{Err: err}
}

// Parser provides streaming XMLTV parsing with callback-based processing.
// Channels and programmes are delivered in document order.
type Parser struct {
	// OnChannel is called for each channel definition.
	OnChannel func(channel *Channel) error

	// OnProgramme is called for each parsed programme.
	OnProgramme func(programme *Programme) error
}

// Parse parses an XMLTV document from a reader.
func (p *Parser) Parse(r io.Reader) error {
	decoder := xml.NewDecoder(r)
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charset.NewReaderLabel

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapDecodeError(err)
		}

		switch elem := token.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "channel":
				channel, err := p.parseChannel(decoder, elem)
				if err != nil {
					return wrapDecodeError(err)
				}
				if p.OnChannel != nil {
					if err := p.OnChannel(channel); err != nil {
						return fmt.Errorf("channel callback: %w", err)
					}
				}

			case "programme":
				programme, err := p.parseProgramme(decoder, elem)
				if err != nil {
					return wrapDecodeError(err)
				}
				if p.OnProgramme != nil {
					if err := p.OnProgramme(programme); err != nil {
						return fmt.Errorf("programme callback: %w", err)
					}
				}
			}
		}
	}

	return nil
}

// ParseCompressed parses a potentially compressed XMLTV document.
// It auto-detects gzip, bzip2, and xz compression from magic bytes.
func (p *Parser) ParseCompressed(r io.Reader) error {
	br := bufio.NewReader(r)

	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return fmt.Errorf("peeking header: %w", err)
	}

	var reader io.Reader = br

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		reader = bzip2.NewReader(br)

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' && header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	}

	return p.Parse(reader)
}

// parseChannel parses a channel element. The first display-name child wins.
func (p *Parser) parseChannel(decoder *xml.Decoder, start xml.StartElement) (*Channel, error) {
	channel := &Channel{}

	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			channel.ID = attr.Value
		}
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch elem := token.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "display-name":
				var name string
				if err := decoder.DecodeElement(&name, &elem); err != nil {
					return nil, err
				}
				if channel.DisplayName == "" {
					channel.DisplayName = strings.TrimSpace(name)
				}
			case "icon":
				for _, attr := range elem.Attr {
					if attr.Name.Local == "src" {
						channel.IconURL = attr.Value
					}
				}
				if err := decoder.Skip(); err != nil {
					return nil, err
				}
			default:
				if err := decoder.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if elem.Name.Local == "channel" {
				return channel, nil
			}
		}
	}
}

// parseProgramme parses a programme element.
func (p *Parser) parseProgramme(decoder *xml.Decoder, start xml.StartElement) (*Programme, error) {
	prog := &Programme{Lang: DefaultLang}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "start":
			prog.Start = strings.TrimSpace(attr.Value)
		case "stop":
			prog.Stop = strings.TrimSpace(attr.Value)
		case "channel":
			prog.Channel = attr.Value
		}
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch elem := token.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "title":
				lang := ""
				for _, attr := range elem.Attr {
					if attr.Name.Local == "lang" {
						lang = strings.TrimSpace(attr.Value)
					}
				}
				var title string
				if err := decoder.DecodeElement(&title, &elem); err != nil {
					return nil, err
				}
				if prog.Title == "" {
					prog.Title = strings.TrimSpace(title)
					if lang != "" {
						prog.Lang = lang
					}
				}
			case "desc":
				var desc string
				if err := decoder.DecodeElement(&desc, &elem); err != nil {
					return nil, err
				}
				if prog.Description == "" {
					prog.Description = strings.TrimSpace(desc)
				}
			case "category":
				var cat string
				if err := decoder.DecodeElement(&cat, &elem); err != nil {
					return nil, err
				}
				if prog.Category == "" {
					prog.Category = strings.TrimSpace(cat)
				}
			case "episode-num":
				var epNum string
				if err := decoder.DecodeElement(&epNum, &elem); err != nil {
					return nil, err
				}
				if prog.EpisodeNum == "" {
					prog.EpisodeNum = strings.TrimSpace(epNum)
				}
			case "icon":
				for _, attr := range elem.Attr {
					if attr.Name.Local == "src" {
						prog.IconURL = attr.Value
					}
				}
				if err := decoder.Skip(); err != nil {
					return nil, err
				}
			default:
				if err := decoder.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if elem.Name.Local == "programme" {
				return prog, nil
			}
		}
	}
}

// ParseString parses an XMLTV string and calls the callbacks for each
// channel and programme.
func ParseString(content string, onChannel func(*Channel) error, onProgramme func(*Programme) error) error {
	p := &Parser{OnChannel: onChannel, OnProgramme: onProgramme}
	return p.Parse(strings.NewReader(content))
}
