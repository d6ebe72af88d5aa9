package bcs

// Writer is the encode-side counterpart of Reader, used by the coin manager
// to build its own merge/split programmable transactions (spec §4.G step 6)
// and by tests to construct fixtures that Decode can round-trip (spec P4).
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded buffer so far.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteFixedBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteBytes(b []byte) {
	w.WriteULEB128(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) writeObjectRef(ref ObjectRef) {
	w.WriteFixedBytes(ref.ObjectID[:])
	w.WriteU64(ref.Version)
	w.WriteFixedBytes(ref.Digest[:])
}

// EncodeTransactionBody is Decode's inverse, used by tests (spec P4) and by
// any caller that needs to hand-assemble a fixture.
func EncodeTransactionBody(tb *TransactionBody) []byte {
	w := NewWriter()
	w.WriteU8(uint8(tb.Kind))
	w.WriteFixedBytes(tb.Sender[:])

	if tb.Kind == KindProgrammable {
		w.WriteULEB128(uint64(len(tb.Commands)))
		for _, cmd := range tb.Commands {
			w.WriteU8(uint8(cmd.Kind))
			switch cmd.Kind {
			case CommandMoveCall:
				if cmd.MoveCall != nil {
					w.WriteFixedBytes(cmd.MoveCall.Package[:])
					w.WriteBytes([]byte(cmd.MoveCall.Module))
					w.WriteBytes([]byte(cmd.MoveCall.Function))
				}
			case CommandMergeCoins:
				if cmd.MergeCoins != nil {
					w.WriteU8(1)
					w.writeObjectRef(cmd.MergeCoins.Destination)
					w.WriteULEB128(uint64(len(cmd.MergeCoins.Sources)))
					for _, ref := range cmd.MergeCoins.Sources {
						w.writeObjectRef(ref)
					}
				} else {
					w.WriteU8(0)
				}
			case CommandSplitCoins:
				if cmd.SplitCoins != nil {
					w.WriteU8(1)
					w.writeObjectRef(cmd.SplitCoins.Source)
					w.WriteULEB128(uint64(len(cmd.SplitCoins.Amounts)))
					for _, a := range cmd.SplitCoins.Amounts {
						w.WriteU64(a)
					}
				} else {
					w.WriteU8(0)
				}
			}
		}
	}

	w.WriteULEB128(uint64(len(tb.Gas.Payment)))
	for _, ref := range tb.Gas.Payment {
		w.writeObjectRef(ref)
	}
	w.WriteFixedBytes(tb.Gas.Owner[:])
	w.WriteU64(tb.Gas.Price)
	w.WriteU64(tb.Gas.Budget)

	return w.Bytes()
}
