package lemondb

import "context"

// Request is the pending result of an object store operation.
// Done is closed once the operation has either succeeded or failed.
type Request struct {
	done   chan struct{}
	key    Key
	result interface{}
	err    error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func failedRequest(err error) *Request {
	r := newRequest()
	r.resolve(Key{}, nil, err)
	return r
}

func (r *Request) resolve(k Key, result interface{}, err error) {
	r.key = k
	r.result = result
	r.err = err
	close(r.done)
}

func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err blocks until the request has been resolved.
func (r *Request) Err() error {
	<-r.done
	return r.err
}

// Key of the affected record.
func (r *Request) Key() Key {
	<-r.done
	return r.key
}

func (r *Request) Result() interface{} {
	<-r.done
	return r.result
}

func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
