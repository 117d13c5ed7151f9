package tcp

import (
	"net/netip"
	"testing"
	"time"
)

// TestConnTimeWaitHoldsUntilTimerFires exercises Conn's optional HashTable and
// Timers collaborators end to end: a closing connection must hash itself on
// ESTABLISHED, stay in TIME_WAIT (not collapse immediately like a minimal
// embedding) while a Timers collaborator is attached, and only unhash/reset
// once the 2*MSL timer actually fires.
func TestConnTimeWaitHoldsUntilTimerFires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MSL = 10 * time.Millisecond
	ht := NewMapHashTable()
	wt := NewWallTimers()

	var client, server Conn
	for _, c := range []*Conn{&client, &server} {
		c.SetHashTable(ht)
		c.SetTimers(wt)
		err := c.Configure(ConnConfig{
			RxBuf:             make([]byte, 1500),
			TxBuf:             make([]byte, 1500),
			TxPacketQueueSize: 3,
			Config:            cfg,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	serverAddr := netip.MustParseAddr("10.0.0.2")
	clientAddr := netip.MustParseAddr("10.0.0.1")
	err := server.OpenListen(80, 1000)
	if err != nil {
		t.Fatal(err)
	}
	err = client.OpenActive(4000, netip.AddrPortFrom(serverAddr, 80), 2000)
	if err != nil {
		t.Fatal(err)
	}
	client.remoteAddr = append(client.remoteAddr[:0], serverAddr.AsSlice()...)
	server.remoteAddr = append(server.remoteAddr[:0], clientAddr.AsSlice()...)

	const ipHeaderLen = 20
	var pkt [1500]byte
	// exchange carries a single TCP segment across a minimal IPv4 header:
	// Encapsulate only fills in the destination address, so the source
	// address (read back by the peer's Demux to learn/verify the remote
	// address) is set here from the sender's own address.
	exchange := func(from, to *Conn, fromAddr netip.Addr) int {
		var ipFrame [ipHeaderLen]byte
		ipFrame[0] = 0x45 // IPv4, 20 byte header.
		carrier := append(ipFrame[:], pkt[:]...)
		n, err := from.Encapsulate(carrier, 0, ipHeaderLen)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			return 0
		}
		srcAddr := fromAddr.As4()
		copy(carrier[12:16], srcAddr[:])
		err = to.Demux(carrier[:ipHeaderLen+n], ipHeaderLen)
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	// 3-way handshake.
	exchange(&client, &server, clientAddr) // SYN
	exchange(&server, &client, serverAddr) // SYN-ACK
	exchange(&client, &server, clientAddr) // ACK

	if client.State() != StateEstablished || server.State() != StateEstablished {
		t.Fatalf("want established, got client=%s server=%s", client.State(), server.State())
	}
	if ht.Len() != 2 {
		t.Fatalf("want both conns hashed on established, got %d", ht.Len())
	}

	// Client-initiated close.
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	exchange(&client, &server, clientAddr) // FIN
	exchange(&server, &client, serverAddr) // ACK
	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	exchange(&server, &client, serverAddr) // FIN
	exchange(&client, &server, clientAddr) // final ACK

	if client.State() != StateTimeWait {
		t.Fatalf("want client in TIME_WAIT immediately after final ACK (held by Timers), got %s", client.State())
	}
	if ht.Len() != 1 {
		t.Fatalf("want server unhashed on CLOSED, client still hashed while in TIME_WAIT, got %d hashed", ht.Len())
	}

	time.Sleep(5 * cfg.MSL)
	client.mu.Lock()
	state := client.h.State()
	client.mu.Unlock()
	if state != StateClosed {
		t.Fatalf("want client resolved to CLOSED once 2*MSL timer fired, got %s", state)
	}
	if ht.Len() != 0 {
		t.Fatalf("want client unhashed once TIME_WAIT timer fired, got %d hashed", ht.Len())
	}
}
