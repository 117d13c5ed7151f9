package tcp

// updateSendWindow implements the flow-control window updater of §4.4: on a
// valid ACK, snd.WND is set to min(rwnd, cap), applied only when
// una <= ack <= nxt. It reports whether wait_send must be woken because the
// window edge went from zero to positive.
func updateSendWindow(snd *sendSpace, ack Value, rwnd Size, cap Size) (wake bool) {
	if !snd.UNA.LessThanEq(ack) || !ack.LessThanEq(snd.NXT) {
		return false
	}
	newWnd := rwnd
	if newWnd > cap {
		newWnd = cap
	}
	wasZero := snd.WND == 0
	snd.WND = newWnd
	return wasZero && newWnd > 0
}
