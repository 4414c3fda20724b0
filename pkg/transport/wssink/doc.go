/*
Package wssink delivers items over a websocket connection.

Every item is written as one websocket message (binary by default), so the
peer receives items whole and in order.

	s, err := wssink.Dial(ctx, "ws://collector:8080/ingest", wssink.DefaultConfig())
	if err != nil {
		return err
	}
	w := writer.New(s)
	defer w.Close()

The sink reads from the connection in the background to answer pings and to
notice when the peer leaves. Once the peer has closed the connection, a
write has failed, or Close was called, Ready and Send fail with a closed
error. A failed write keeps its cause, so a write timeout still matches
os.ErrDeadlineExceeded.
*/
package wssink
