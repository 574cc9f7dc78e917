package datafiles

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sardine-ai/spritecollab-server/model"
)

// Well-known data file names in the root of the working copy.
const (
	SpriteConfigFile = "sprite_config.json"
	TrackerFile      = "tracker.json"
	CreditNamesFile  = "credit_names.txt"
)

// ReadSpriteConfig decodes sprite_config.json.
func ReadSpriteConfig(path string) (model.SpriteConfig, error) {
	var cfg model.SpriteConfig
	if err := readJSON(path, &cfg); err != nil {
		return model.SpriteConfig{}, err
	}
	return cfg, nil
}

// ReadTracker decodes tracker.json.
func ReadTracker(path string) (model.Tracker, error) {
	var tracker model.Tracker
	if err := readJSON(path, &tracker); err != nil {
		return nil, err
	}
	return tracker, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ioError(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return jsonError(data, err)
	}
	return nil
}

// ReadCreditNames decodes the tab-separated credit_names.txt. The first row
// is a header; columns are name, credit id and contact. A credit id that is
// listed twice is rejected.
func ReadCreditNames(path string) (model.CreditNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError(err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return model.CreditNames{}, nil
		}
		return nil, csvError(err)
	}

	names := model.CreditNames{}
	seen := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) < 2 {
			return nil, csvError(&csv.ParseError{
				StartLine: line,
				Line:      line,
				Column:    1,
				Err:       fmt.Errorf("expected at least 2 fields, got %d", len(record)),
			})
		}
		entry := model.CreditName{Name: record[0], CreditID: record[1]}
		if len(record) > 2 {
			entry.Contact = record[2]
		}
		if _, dup := seen[entry.CreditID]; dup {
			return nil, &DataReadError{Kind: KindDuplicateCreditID, CreditID: entry.CreditID, Line: line}
		}
		seen[entry.CreditID] = struct{}{}
		names = append(names, entry)
	}
	return names, nil
}
