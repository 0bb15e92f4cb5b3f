package codec

import "google.golang.org/protobuf/proto"

// Protobuf serializes protobuf messages. Decode needs a fresh concrete
// message to unmarshal into, so the codec is built around a constructor:
//
//	codec.NewProtobuf(func() *mypb.User { return &mypb.User{} })
type Protobuf[T proto.Message] struct {
	new func() T
}

// NewProtobuf constructs a Protobuf codec from a message constructor.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return proto.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
