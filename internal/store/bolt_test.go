package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetDevice(t *testing.T) {
	s := newTestStore(t)

	dev := &Device{
		IEEEAddress:  "00158D00012A3B4C",
		Manufacturer: "LUMI",
		Model:        "lumi.sensor_magnet.aq2",
		QuirkID:      "xiaomi.magnet",
		JoinedAt:     time.Now().Truncate(time.Millisecond),
		LastSeen:     time.Now().Truncate(time.Millisecond),
		Endpoints: []Endpoint{
			{ID: 1, ProfileID: 0x0104, DeviceID: 0x0015, InClusters: []uint16{0, 6}},
		},
	}
	dev.SetAttribute(1, 0x0006, "on_off", true)

	if err := s.SaveDevice(dev); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDevice(dev.IEEEAddress)
	if err != nil {
		t.Fatal(err)
	}

	if got.Manufacturer != dev.Manufacturer || got.Model != dev.Model || got.QuirkID != dev.QuirkID {
		t.Errorf("identity = %q/%q/%q", got.Manufacturer, got.Model, got.QuirkID)
	}
	if len(got.Endpoints) != 1 || got.Endpoints[0].ID != 1 {
		t.Fatalf("endpoints = %+v", got.Endpoints)
	}
	if v := got.Attributes[ClusterKey(1, 0x0006)]["on_off"]; v != true {
		t.Errorf("cached on_off = %v, want true", v)
	}
}

func TestUpdateDevice(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveDevice(&Device{IEEEAddress: "0000000000000001"}); err != nil {
		t.Fatal(err)
	}

	err := s.UpdateDevice("0000000000000001", func(d *Device) error {
		d.FriendlyName = "Hallway motion"
		d.SetAttribute(1, 0x0406, "occupancy", float64(1))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDevice("0000000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if got.FriendlyName != "Hallway motion" {
		t.Errorf("friendly_name = %q", got.FriendlyName)
	}
	if got.Attributes[ClusterKey(1, 0x0406)]["occupancy"] != float64(1) {
		t.Errorf("attributes = %v", got.Attributes)
	}
}

func TestUpdateDeviceAbortsOnError(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveDevice(&Device{IEEEAddress: "0000000000000001", FriendlyName: "before"}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.UpdateDevice("0000000000000001", func(d *Device) error {
		d.FriendlyName = "after"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, _ := s.GetDevice("0000000000000001")
	if got.FriendlyName != "before" {
		t.Errorf("friendly_name = %q, want unchanged", got.FriendlyName)
	}
}

func TestUpdateDeviceNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateDevice("FFFFFFFFFFFFFFFF", func(*Device) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertDevice(t *testing.T) {
	s := newTestStore(t)

	created, err := s.UpsertDevice("0000000000000001", func(d *Device) error {
		if d.IEEEAddress != "0000000000000001" || d.Model != "" {
			t.Errorf("new device = %+v, want empty with address", d)
		}
		d.Model = "SML001"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.Model != "SML001" {
		t.Errorf("created = %+v", created)
	}

	if err := s.UpdateDevice("0000000000000001", func(d *Device) error {
		d.SetAttribute(2, 0x0406, "occupancy", true)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpsertDevice("0000000000000001", func(d *Device) error {
		d.Model = "SML002"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Model != "SML002" || updated.Attributes[ClusterKey(2, 0x0406)]["occupancy"] != true {
		t.Errorf("updated = %+v, want model changed and cache kept", updated)
	}

	boom := errors.New("boom")
	if _, err := s.UpsertDevice("0000000000000002", func(*Device) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if _, err := s.GetDevice("0000000000000002"); !errors.Is(err, ErrNotFound) {
		t.Errorf("aborted upsert should not create device, err = %v", err)
	}
}

func TestDeleteDevice(t *testing.T) {
	s := newTestStore(t)

	dev := &Device{IEEEAddress: "00158D00012A3B4C"}
	if err := s.SaveDevice(dev); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDevice(dev.IEEEAddress); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetDevice(dev.IEEEAddress); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListDevices(t *testing.T) {
	s := newTestStore(t)

	devs := []*Device{
		{IEEEAddress: "0000000000000001"},
		{IEEEAddress: "0000000000000002"},
		{IEEEAddress: "0000000000000003"},
	}
	for _, d := range devs {
		if err := s.SaveDevice(d); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("list count = %d, want 3", len(list))
	}

	found := make(map[string]bool)
	for _, d := range list {
		found[d.IEEEAddress] = true
	}
	for _, d := range devs {
		if !found[d.IEEEAddress] {
			t.Errorf("device %s not in list", d.IEEEAddress)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		dev  Device
		want string
	}{
		{Device{FriendlyName: "Door", Manufacturer: "LUMI"}, "Door"},
		{Device{Manufacturer: "Philips", Model: "SML001"}, "Philips SML001"},
		{Device{Model: "SML001"}, "SML001"},
		{Device{}, ""},
	}
	for _, tt := range tests {
		if got := tt.dev.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.dev, got, tt.want)
		}
	}
}
