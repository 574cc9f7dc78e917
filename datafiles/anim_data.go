package datafiles

import (
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
)

// AnimDataFileName is the per-form animation metadata file.
const AnimDataFileName = "AnimData.xml"

// AnimData is the decoded content of an AnimData.xml file.
type AnimData struct {
	XMLName    xml.Name `xml:"AnimData"`
	ShadowSize int      `xml:"ShadowSize"`
	Anims      []Anim   `xml:"Anims>Anim"`
}

// Anim describes one animation. An animation either references another one
// through CopyOf or declares its own frame geometry and durations.
type Anim struct {
	Name        string `xml:"Name"`
	Index       *int   `xml:"Index"`
	CopyOf      string `xml:"CopyOf"`
	FrameWidth  int    `xml:"FrameWidth"`
	FrameHeight int    `xml:"FrameHeight"`
	RushFrame   *int   `xml:"RushFrame"`
	HitFrame    *int   `xml:"HitFrame"`
	ReturnFrame *int   `xml:"ReturnFrame"`
	Durations   []int  `xml:"Durations>Duration"`
}

// AnimDataErrorKind classifies AnimData.xml failures.
type AnimDataErrorKind int

const (
	AnimDataIO      AnimDataErrorKind = iota + 1 // File missing or unreadable
	AnimDataXML                                  // Not well-formed XML
	AnimDataInvalid                              // Well-formed but semantically broken
)

// AnimDataError is the per-form failure collected by the Validator.
type AnimDataError struct {
	Kind AnimDataErrorKind
	Err  error
}

func (e *AnimDataError) Error() string {
	switch e.Kind {
	case AnimDataIO:
		return fmt.Sprintf("I/O error: %v", e.Err)
	case AnimDataXML:
		return fmt.Sprintf("XML error: %v", e.Err)
	default:
		return fmt.Sprintf("invalid animation data: %v", e.Err)
	}
}

func (e *AnimDataError) Unwrap() error {
	return e.Err
}

// AnimDataPath returns the location of the AnimData.xml file of a form
// relative to root, e.g. root/sprite/0025/0001/AnimData.xml.
func AnimDataPath(root string, monsterID int, formPath []int) string {
	parts := []string{root, "sprite", fmt.Sprintf("%04d", monsterID)}
	for _, f := range formPath {
		parts = append(parts, fmt.Sprintf("%04d", f))
	}
	parts = append(parts, AnimDataFileName)
	return filepath.Join(parts...)
}

// ParseAnimData decodes and checks the content of an AnimData.xml file.
func ParseAnimData(data []byte) (*AnimData, error) {
	var ad AnimData
	if err := xml.Unmarshal(data, &ad); err != nil {
		return nil, &AnimDataError{Kind: AnimDataXML, Err: err}
	}
	if err := ad.check(); err != nil {
		return nil, &AnimDataError{Kind: AnimDataInvalid, Err: err}
	}
	return &ad, nil
}

func (ad *AnimData) check() error {
	if len(ad.Anims) == 0 {
		return errors.New("no animations defined")
	}
	names := make(map[string]struct{}, len(ad.Anims))
	for _, a := range ad.Anims {
		if a.Name == "" {
			return errors.New("animation without name")
		}
		names[a.Name] = struct{}{}
	}
	for _, a := range ad.Anims {
		if a.CopyOf != "" {
			if _, ok := names[a.CopyOf]; !ok {
				return fmt.Errorf("%s: copies unknown animation %s", a.Name, a.CopyOf)
			}
			continue
		}
		if a.FrameWidth <= 0 || a.FrameHeight <= 0 {
			return fmt.Errorf("%s: invalid frame size %dx%d", a.Name, a.FrameWidth, a.FrameHeight)
		}
		if len(a.Durations) == 0 {
			return fmt.Errorf("%s: no frame durations", a.Name)
		}
	}
	return nil
}
