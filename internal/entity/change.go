package entity

import "time"

type RecordKind string

const (
	RecordTicket  RecordKind = "ticket"
	RecordPayment RecordKind = "payment"
	RecordVehicle RecordKind = "vehicle"
	RecordStaff   RecordKind = "staff"
)

// WatchedKinds are the record types the stats stream listens to.
var WatchedKinds = []RecordKind{RecordTicket, RecordPayment, RecordVehicle, RecordStaff}

// ChangeEvent is a single mutation observed on the record store.
type ChangeEvent struct {
	Kind RecordKind `json:"kind"`
	Op   string     `json:"op"`
	Key  string     `json:"key"`
	At   time.Time  `json:"at"`
}
