/*
Package redissink delivers items to a Redis stream.

Each item becomes one stream entry written with XADD, holding the payload in
Config.Field and the producer's InstanceID in "producer".

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	s, err := redissink.New(redissink.Config{
		Redis:  rdb,
		Stream: "events",
		MaxLen: 10000,
	})

With MaxLen set, Ready polls XLEN and blocks while the stream holds MaxLen
entries or more, so a producer cannot outrun its consumers by more than that
many entries. Consumers are expected to trim or delete what they have
processed (XTRIM, XDEL or consumer groups with trimming).

Errors from Redis are returned as *errors.TransportError and can be retried.
A closed client (redis.ErrClosed) is reported as a closed error and ends the
sink. The client is never closed by the sink.
*/
package redissink
