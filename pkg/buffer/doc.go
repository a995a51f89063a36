// Package buffer provides queue types for handing data between goroutines.
//
// Ring is a fixed-size FIFO that overwrites its oldest element when full.
// Producers never block, which makes it suitable for fire-and-forget event
// delivery from latency-sensitive loops: a slow consumer loses the oldest
// events instead of stalling the producer.
//
// Example usage:
//
//	q := buffer.RingN[Event](64)
//	go func() {
//	    for {
//	        ev, err := q.Next()
//	        if err != nil {
//	            return
//	        }
//	        handle(ev)
//	    }
//	}()
//	q.Add(ev)
//	q.CloseWrite()
package buffer
