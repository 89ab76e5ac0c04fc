package scheduling

import (
	"testing"
	"time"
)

var testDate = time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)

func TestGenerateSlots_NineToFive(t *testing.T) {
	slots := GenerateSlots(9, 17, testDate)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if slots[0] != "9:00 AM" {
		t.Errorf("expected first slot 9:00 AM, got %s", slots[0])
	}
	if slots[1] != "9:30 AM" {
		t.Errorf("expected second slot 9:30 AM, got %s", slots[1])
	}
	if slots[6] != "12:00 PM" {
		t.Errorf("expected 12:00 PM at index 6, got %s", slots[6])
	}
	if slots[15] != "4:30 PM" {
		t.Errorf("expected last slot 4:30 PM, got %s", slots[15])
	}
}

func TestGenerateSlots_EmptyRange(t *testing.T) {
	for _, r := range [][2]int{{9, 9}, {17, 9}} {
		slots := GenerateSlots(r[0], r[1], testDate)
		if slots == nil || len(slots) != 0 {
			t.Errorf("GenerateSlots(%d, %d) = %v, want empty non-nil", r[0], r[1], slots)
		}
	}
}

func TestGenerateSlots_Deterministic(t *testing.T) {
	a := GenerateSlots(8, 16, testDate)
	b := GenerateSlots(8, 16, testDate.Add(13*time.Hour))
	if len(a) != len(b) {
		t.Fatalf("length mismatch %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("slot %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestSlotTime(t *testing.T) {
	got, err := SlotTime(testDate.Add(5*time.Hour), "2:30 PM")
	if err != nil {
		t.Fatalf("SlotTime error: %v", err)
	}
	want := time.Date(2025, 7, 5, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("SlotTime = %v, want %v", got, want)
	}
	if FormatSlotLabel(got) != "2:30 PM" {
		t.Errorf("round trip label = %s", FormatSlotLabel(got))
	}
}

func TestGenerateSlots_DSTDays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	for _, day := range []time.Time{
		time.Date(2025, 3, 9, 0, 0, 0, 0, ny),
		time.Date(2025, 11, 2, 0, 0, 0, 0, ny),
	} {
		slots := GenerateSlots(9, 17, day)
		if len(slots) != 16 || slots[0] != "9:00 AM" || slots[15] != "4:30 PM" {
			t.Errorf("%s: unexpected grid %v", day.Format(DateLayout), slots)
		}

		got, err := SlotTime(day, "9:00 AM")
		if err != nil {
			t.Fatalf("SlotTime error: %v", err)
		}
		if got.Hour() != 9 || got.Minute() != 0 || FormatSlotLabel(got) != "9:00 AM" {
			t.Errorf("%s: 9:00 AM resolved to %v", day.Format(DateLayout), got)
		}
	}
}

func TestGenerateSlots_SpansSpringForwardGap(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	slots := GenerateSlots(1, 4, time.Date(2025, 3, 9, 0, 0, 0, 0, ny))
	want := []string{"1:00 AM", "1:30 AM", "2:00 AM", "2:30 AM", "3:00 AM", "3:30 AM"}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot %d: expected %s, got %s", i, want[i], slots[i])
		}
	}
}

func TestSlotTime_InvalidLabel(t *testing.T) {
	if _, err := SlotTime(testDate, "14:30"); err == nil {
		t.Error("expected error for 24h label")
	}
}

func TestSortSlotLabels(t *testing.T) {
	labels := []string{"2:00 PM", "lunch", "10:00 AM", "9:30 AM", "12:00 PM"}
	sortSlotLabels(labels)
	want := []string{"9:30 AM", "10:00 AM", "12:00 PM", "2:00 PM", "lunch"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("got %v, want %v", labels, want)
		}
	}
}
