package model

import (
	"sort"
	"time"
)

type HelmetID string

// CurrentState is the latest known telemetry of one helmet. Optional readings are
// pointers: nil means the helmet did not report the value, zero is a real reading.
type CurrentState struct {
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Timestamp    time.Time `json:"-"`
	RawTimestamp string    `json:"timestamp,omitempty"`

	SensorEmergency  bool `json:"sensorEmergency"`
	CommandEmergency bool `json:"commandEmergency"`
	// Emergency is the displayed flag: sensor bit OR command-channel override.
	Emergency bool `json:"emergency"`
	Active    bool `json:"active"`
}

func (s CurrentState) HasTimestamp() bool { return !s.Timestamp.IsZero() }

// Snapshot is the whole fleet as delivered by one live-store update.
type Snapshot map[HelmetID]CurrentState

// IDs returns the helmet ids in ascending order. Every "first helmet that ..." rule
// walks the snapshot in this order.
func (s Snapshot) IDs() []HelmetID {
	ids := make([]HelmetID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type Status string

const (
	StatusEmergency Status = "emergency"
	StatusInactive  Status = "inactive"
	StatusActive    Status = "active"
	// StatusUnknown is only produced by the map classification.
	StatusUnknown Status = "unknown"
)

type AlertKind string

const (
	AlertEmergency   AlertKind = "emergency"
	AlertTemperature AlertKind = "temperature"
	AlertOffline     AlertKind = "offline"
)

type Alert struct {
	Kind     AlertKind    `json:"kind"`
	HelmetID HelmetID     `json:"helmetId"`
	State    CurrentState `json:"state"`
	RaisedAt time.Time    `json:"raisedAt"`
}

// Same reports whether two alerts describe the same raised condition.
func (a Alert) Same(b Alert) bool {
	return a.Kind == b.Kind && a.HelmetID == b.HelmetID && a.RaisedAt.Equal(b.RaisedAt)
}

// AlertEvent is what notifiers receive when a new alert becomes visible.
type AlertEvent struct {
	EventID   string       `json:"eventId"`
	Kind      AlertKind    `json:"kind"`
	HelmetID  HelmetID     `json:"helmetId"`
	State     CurrentState `json:"state"`
	RaisedAt  time.Time    `json:"raisedAt"`
	EmittedAt time.Time    `json:"emittedAt"`
}

// HistoryRecord is one archived reading. Field names follow the archive documents.
type HistoryRecord struct {
	ID        string  `json:"id,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Temp      float64 `json:"temp"`
	Emergency bool    `json:"emergency"`
	Active    bool    `json:"active"`
	Ts        string  `json:"ts"`
	Date      string  `json:"date"`
	Hour      string  `json:"hour"`
}

type SyncResult struct {
	HelmetID      HelmetID `json:"helmetId"`
	Written       int      `json:"written"`
	Skipped       int      `json:"skipped"`
	NothingToSync bool     `json:"nothingToSync"`
}

type DaySummary struct {
	Date        string   `json:"date"`
	TotalPoints int      `json:"totalPoints"`
	AvgTemp     *float64 `json:"avgTemp,omitempty"`
	Emergencies int      `json:"emergencies"`
	ActiveHours int      `json:"activeHours"`
	Hours       []string `json:"hours"`
}

// ExportRecord is one parquet row of the daily export.
type ExportRecord struct {
	HelmetID  string  `parquet:"name=helmet_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	RecordID  string  `parquet:"name=record_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Date      string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Hour      string  `parquet:"name=hour, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Lat       float64 `parquet:"name=lat, type=DOUBLE"`
	Lng       float64 `parquet:"name=lng, type=DOUBLE"`
	Temp      float64 `parquet:"name=temp, type=DOUBLE"`
	Emergency bool    `parquet:"name=emergency, type=BOOLEAN"`
	Active    bool    `parquet:"name=active, type=BOOLEAN"`
}

func ToMillis(t time.Time) int64 { return t.UTC().UnixNano() / 1e6 }
