package resolver

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/s3resolver/pkg/objectstore"
)

type (
	fakeObject struct {
		ContentType string
		Data        []byte
	}

	// fakeStore is an in-memory objectstore.Store counting the
	// operations executed against it
	fakeStore struct {
		lock    sync.Mutex
		objects map[string]fakeObject

		statErr     error
		downloadErr error

		statCalls     int64
		downloadCalls int64
	}
)

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]fakeObject{}}
}

func (f *fakeStore) put(bucket, key string, obj fakeObject) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.objects[bucket+"/"+key] = obj
}

func (f *fakeStore) Stat(_ context.Context, bucket, key string) (*objectstore.ObjectInfo, error) {
	atomic.AddInt64(&f.statCalls, 1)

	if f.statErr != nil {
		return nil, f.statErr
	}

	f.lock.Lock()
	obj, ok := f.objects[bucket+"/"+key]
	f.lock.Unlock()

	if !ok {
		return nil, os.ErrNotExist
	}

	return &objectstore.ObjectInfo{
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
	}, nil
}

func (f *fakeStore) Download(_ context.Context, bucket, key string, dst io.Writer) error {
	atomic.AddInt64(&f.downloadCalls, 1)

	if f.downloadErr != nil {
		return f.downloadErr
	}

	f.lock.Lock()
	obj, ok := f.objects[bucket+"/"+key]
	f.lock.Unlock()

	if !ok {
		return os.ErrNotExist
	}

	if _, err := dst.Write(obj.Data); err != nil {
		return errors.Wrap(err, "write object data")
	}

	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
