package tcp

import (
	"bytes"
	"testing"
)

func TestTxQueueSequentialMessages(t *testing.T) {
	var buf [1024]byte
	var aux [1024]byte
	const startAck = Value(1000)
	var rtx ringTx
	err := rtx.Reset(buf[:], 4, startAck)
	if err != nil {
		t.Fatal(err)
	}
	msgs := [][]byte{
		[]byte("first message"),
		[]byte("second, slightly longer message"),
		[]byte("third"),
	}
	seq := startAck
	for i, msg := range msgs {
		n, err := rtx.Write(msg)
		if err != nil {
			t.Fatalf("msg%d write: %s", i, err)
		} else if n != len(msg) {
			t.Fatalf("msg%d: want %d written, got %d", i, len(msg), n)
		}
		if unsent := rtx.Buffered(); unsent != len(msg) {
			t.Fatalf("msg%d: want %d unsent, got %d", i, len(msg), unsent)
		}

		n, err = rtx.MakePacket(aux[:], seq)
		if err != nil {
			t.Fatalf("msg%d MakePacket: %s", i, err)
		} else if n != len(msg) {
			t.Fatalf("msg%d: want %d packeted, got %d", i, len(msg), n)
		} else if !bytes.Equal(aux[:n], msg) {
			t.Fatalf("msg%d: packet data mismatch: got %q want %q", i, aux[:n], msg)
		}
		if sent := rtx.BufferedSent(); sent != len(msg) {
			t.Fatalf("msg%d: want %d sent, got %d", i, len(msg), sent)
		}

		seq = Add(seq, Size(n))
		if err := rtx.RecvACK(seq); err != nil {
			t.Fatalf("msg%d RecvACK: %s", i, err)
		}
		if sent := rtx.BufferedSent(); sent != 0 {
			t.Fatalf("msg%d: want 0 sent after ack, got %d", i, sent)
		}
		if unsent := rtx.Buffered(); unsent != 0 {
			t.Fatalf("msg%d: want 0 unsent after ack, got %d", i, unsent)
		}
	}
}

// TestTxQueueCumulativeACKPrunesSentList exercises the retransmission-queue
// pruning that backs [ControlBlock]'s cumulative-ACK handling: a single ACK
// covering several previously sent packets must free all of them at once.
func TestTxQueueCumulativeACKPrunesSentList(t *testing.T) {
	var buf [256]byte
	var aux [256]byte
	const startAck = Value(5000)
	var rtx ringTx
	if err := rtx.Reset(buf[:], 8, startAck); err != nil {
		t.Fatal(err)
	}
	msgs := [][]byte{[]byte("aaaa"), []byte("bbbbbb"), []byte("cc")}
	seq := startAck
	var totalSent int
	for i, msg := range msgs {
		if _, err := rtx.Write(msg); err != nil {
			t.Fatalf("msg%d write: %s", i, err)
		}
		n, err := rtx.MakePacket(aux[:], seq)
		if err != nil {
			t.Fatalf("msg%d MakePacket: %s", i, err)
		}
		seq = Add(seq, Size(n))
		totalSent += len(msg)
	}
	if sent := rtx.BufferedSent(); sent != totalSent {
		t.Fatalf("want %d bytes sent and unacked, got %d", totalSent, sent)
	}
	// A single cumulative ACK past all three messages must free the whole
	// sent region in one call, the behavior the prior per-segment retransmit
	// queue did not model.
	if err := rtx.RecvACK(seq); err != nil {
		t.Fatal(err)
	}
	if sent := rtx.BufferedSent(); sent != 0 {
		t.Fatalf("want 0 bytes outstanding after cumulative ACK, got %d", sent)
	}
	if free := rtx.Free(); free != rtx.Size() {
		t.Fatalf("want entire ring free after cumulative ACK, got %d/%d", free, rtx.Size())
	}
}
