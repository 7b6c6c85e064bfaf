package model

import (
	"encoding/json"
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

func TestJSONBValueAndScan(t *testing.T) {
	original := JSONB{"order_status": "in_progress", "progress": 40}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("expected []byte value, got %T", value)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal value error: %v", err)
	}

	if decoded["order_status"] != "in_progress" {
		t.Fatalf("expected order_status in_progress, got %v", decoded["order_status"])
	}

	var scanned JSONB
	if err := scanned.Scan(string(data)); err != nil {
		t.Fatalf("Scan() from string error: %v", err)
	}

	if scanned["order_status"] != "in_progress" {
		t.Fatalf("expected scanned order_status in_progress, got %v", scanned["order_status"])
	}
}

func TestJSONBScanRejectsUnknownType(t *testing.T) {
	var scanned JSONB
	if err := scanned.Scan(42); err == nil {
		t.Fatal("expected error scanning int into JSONB")
	}
}

func TestStringListRoundTrip(t *testing.T) {
	lots := StringList{"LOT-001", "LOT 002"}

	value, err := lots.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var scanned StringList
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(scanned) != 2 || scanned[0] != "LOT-001" || scanned[1] != "LOT 002" {
		t.Fatalf("unexpected lots %v", scanned)
	}
}

func TestStringListFieldHasDataType(t *testing.T) {
	s, err := schema.Parse(&ProductionOutput{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse ProductionOutput: %v", err)
	}
	field := s.LookUpField("lot_numbers")
	if field == nil {
		t.Fatal("lot_numbers field not found")
	}
	if field.DataType == "" {
		t.Fatal("lot_numbers has no data type")
	}
}
