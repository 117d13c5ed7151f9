package tcp

import "testing"

func TestUpdateSendWindowCapped(t *testing.T) {
	snd := sendSpace{ISS: 100, UNA: 100, NXT: 200, WND: 1000}
	wake := updateSendWindow(&snd, 150, 9000, 4000)
	if wake {
		t.Fatal("non-zero-to-non-zero transition must not wake")
	}
	if snd.WND != 4000 {
		t.Fatalf("WND = %d, want capped 4000", snd.WND)
	}
}

func TestUpdateSendWindowZeroToNonzeroWakes(t *testing.T) {
	snd := sendSpace{ISS: 100, UNA: 100, NXT: 200, WND: 0}
	wake := updateSendWindow(&snd, 150, 500, 4000)
	if !wake {
		t.Fatal("zero->nonzero edge must wake wait_send")
	}
	if snd.WND != 500 {
		t.Fatalf("WND = %d, want 500", snd.WND)
	}
}

func TestUpdateSendWindowRejectsOutOfRangeAck(t *testing.T) {
	snd := sendSpace{ISS: 100, UNA: 100, NXT: 200, WND: 0}
	wake := updateSendWindow(&snd, 300, 500, 4000)
	if wake {
		t.Fatal("ack outside [una,nxt] must not update the window")
	}
	if snd.WND != 0 {
		t.Fatalf("WND must be untouched, got %d", snd.WND)
	}
}
