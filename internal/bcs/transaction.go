package bcs

import "fmt"

// Kind discriminates a TransactionKind's outer variant (spec §4.F check 2).
type Kind uint8

const (
	KindProgrammable Kind = iota
	KindOther
)

// CommandKind discriminates one programmable-transaction command (spec
// §4.F check 3). The numeric values are this decoder's own stable encoding,
// documented here rather than inherited byte-for-byte from the chain's
// internal enum, since this package is a narrow admission-focused reader,
// not a full protocol codec (see package doc).
type CommandKind uint8

const (
	CommandMoveCall CommandKind = iota
	CommandTransferObjects
	CommandSplitCoins
	CommandMergeCoins
	CommandPublish
	CommandMakeMoveVec
	CommandUpgrade
)

// String implements fmt.Stringer for log lines.
func (k CommandKind) String() string {
	switch k {
	case CommandMoveCall:
		return "MoveCall"
	case CommandTransferObjects:
		return "TransferObjects"
	case CommandSplitCoins:
		return "SplitCoins"
	case CommandMergeCoins:
		return "MergeCoins"
	case CommandPublish:
		return "Publish"
	case CommandMakeMoveVec:
		return "MakeMoveVec"
	case CommandUpgrade:
		return "Upgrade"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Address is a 32-byte chain address.
type Address [32]byte

// Hex renders the address as a "0x"-prefixed hex string.
func (a Address) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(a)*2)
	out[0], out[1] = '0', 'x'
	for i, b := range a {
		out[2+i*2] = hextable[b>>4]
		out[3+i*2] = hextable[b&0xf]
	}
	return string(out)
}

// ObjectRef is the wire form of a coin (or any object) reference: id,
// sequence number (version), digest.
type ObjectRef struct {
	ObjectID [32]byte
	Version  uint64
	Digest   [32]byte
}

// GasData mirrors spec §3 GasData: payment, owner, price, budget.
type GasData struct {
	Payment []ObjectRef
	Owner   Address
	Price   uint64
	Budget  uint64
}

// MoveCall is the subset of a MoveCall command's fields admission needs:
// which package::module::function is being invoked.
type MoveCall struct {
	Package  Address
	Module   string
	Function string
}

// MergeCoinsArgs is a MergeCoins command's payload: fold Sources into
// Destination. Only the coin manager's own rebalance PTB (spec §4.G step 6)
// ever populates this; admission decoding never needs it.
type MergeCoinsArgs struct {
	Destination ObjectRef
	Sources     []ObjectRef
}

// SplitCoinsArgs is a SplitCoins command's payload: split Source into coins
// of each of Amounts (spec §4.G step 6).
type SplitCoinsArgs struct {
	Source  ObjectRef
	Amounts []uint64
}

// Command is one decoded command; Kind discriminates which payload field is
// populated. MoveCall is the only payload admission checks need; MergeCoins
// and SplitCoins are populated only on commands this package's own Writer
// produced (the coin manager's rebalance transaction).
type Command struct {
	Kind       CommandKind
	MoveCall   *MoveCall
	MergeCoins *MergeCoinsArgs
	SplitCoins *SplitCoinsArgs
}

// TransactionBody is the decoded admission-relevant view of a
// TransactionData (spec §3). It does not retain the full original byte
// structure for commands this package doesn't need to inspect.
type TransactionBody struct {
	Sender   Address
	Kind     Kind
	Commands []Command
	Gas      GasData
}

// Decode parses raw BCS-encoded transaction bytes into a TransactionBody.
// Layout (this package's own canonical encoding, produced by
// EncodeTransactionBody in writer.go): u8 outer-kind tag, 32-byte sender,
// for the programmable kind only a ULEB128-length-prefixed list of commands
// (each: u8 command-kind tag; MoveCall commands additionally carry
// package/module/function; MergeCoins and SplitCoins carry a u8 presence
// flag followed, when it is 1, by their arguments), then
// GasData (ULEB128-length-prefixed ObjectRef list, 32-byte owner, u64 price,
// u64 budget).
func Decode(raw []byte) (*TransactionBody, error) {
	r := NewReader(raw)

	kindTag, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("bcs: read kind: %w", err)
	}
	tb := &TransactionBody{Kind: Kind(kindTag)}

	senderBytes, err := r.FixedBytes(32)
	if err != nil {
		return nil, fmt.Errorf("bcs: read sender: %w", err)
	}
	copy(tb.Sender[:], senderBytes)

	if tb.Kind == KindProgrammable {
		n, err := r.ULEB128()
		if err != nil {
			return nil, fmt.Errorf("bcs: read command count: %w", err)
		}
		tb.Commands = make([]Command, 0, n)
		for i := uint64(0); i < n; i++ {
			cmdTag, err := r.U8()
			if err != nil {
				return nil, fmt.Errorf("bcs: read command %d tag: %w", i, err)
			}
			cmd := Command{Kind: CommandKind(cmdTag)}
			switch cmd.Kind {
			case CommandMoveCall:
				pkgBytes, err := r.FixedBytes(32)
				if err != nil {
					return nil, fmt.Errorf("bcs: read command %d package: %w", i, err)
				}
				module, err := r.Bytes()
				if err != nil {
					return nil, fmt.Errorf("bcs: read command %d module: %w", i, err)
				}
				function, err := r.Bytes()
				if err != nil {
					return nil, fmt.Errorf("bcs: read command %d function: %w", i, err)
				}
				var pkg Address
				copy(pkg[:], pkgBytes)
				cmd.MoveCall = &MoveCall{Package: pkg, Module: string(module), Function: string(function)}
			case CommandMergeCoins:
				present, err := r.U8()
				if err != nil {
					return nil, fmt.Errorf("bcs: read command %d merge-coins presence: %w", i, err)
				}
				if present == 1 {
					args, err := decodeMergeCoinsArgs(r)
					if err != nil {
						return nil, fmt.Errorf("bcs: read command %d merge-coins args: %w", i, err)
					}
					cmd.MergeCoins = args
				}
			case CommandSplitCoins:
				present, err := r.U8()
				if err != nil {
					return nil, fmt.Errorf("bcs: read command %d split-coins presence: %w", i, err)
				}
				if present == 1 {
					args, err := decodeSplitCoinsArgs(r)
					if err != nil {
						return nil, fmt.Errorf("bcs: read command %d split-coins args: %w", i, err)
					}
					cmd.SplitCoins = args
				}
			}
			tb.Commands = append(tb.Commands, cmd)
		}
	}

	gas, err := decodeGasData(r)
	if err != nil {
		return nil, fmt.Errorf("bcs: read gas data: %w", err)
	}
	tb.Gas = gas

	return tb, nil
}

func decodeObjectRef(r *Reader) (ObjectRef, error) {
	idBytes, err := r.FixedBytes(32)
	if err != nil {
		return ObjectRef{}, err
	}
	version, err := r.U64()
	if err != nil {
		return ObjectRef{}, err
	}
	digestBytes, err := r.FixedBytes(32)
	if err != nil {
		return ObjectRef{}, err
	}
	var ref ObjectRef
	copy(ref.ObjectID[:], idBytes)
	ref.Version = version
	copy(ref.Digest[:], digestBytes)
	return ref, nil
}

func decodeMergeCoinsArgs(r *Reader) (*MergeCoinsArgs, error) {
	dest, err := decodeObjectRef(r)
	if err != nil {
		return nil, err
	}
	n, err := r.ULEB128()
	if err != nil {
		return nil, err
	}
	sources := make([]ObjectRef, 0, n)
	for i := uint64(0); i < n; i++ {
		ref, err := decodeObjectRef(r)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ref)
	}
	return &MergeCoinsArgs{Destination: dest, Sources: sources}, nil
}

func decodeSplitCoinsArgs(r *Reader) (*SplitCoinsArgs, error) {
	source, err := decodeObjectRef(r)
	if err != nil {
		return nil, err
	}
	n, err := r.ULEB128()
	if err != nil {
		return nil, err
	}
	amounts := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		a, err := r.U64()
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, a)
	}
	return &SplitCoinsArgs{Source: source, Amounts: amounts}, nil
}

func decodeGasData(r *Reader) (GasData, error) {
	n, err := r.ULEB128()
	if err != nil {
		return GasData{}, err
	}
	payment := make([]ObjectRef, 0, n)
	for i := uint64(0); i < n; i++ {
		idBytes, err := r.FixedBytes(32)
		if err != nil {
			return GasData{}, err
		}
		version, err := r.U64()
		if err != nil {
			return GasData{}, err
		}
		digestBytes, err := r.FixedBytes(32)
		if err != nil {
			return GasData{}, err
		}
		var ref ObjectRef
		copy(ref.ObjectID[:], idBytes)
		ref.Version = version
		copy(ref.Digest[:], digestBytes)
		payment = append(payment, ref)
	}

	ownerBytes, err := r.FixedBytes(32)
	if err != nil {
		return GasData{}, err
	}
	var owner Address
	copy(owner[:], ownerBytes)

	price, err := r.U64()
	if err != nil {
		return GasData{}, err
	}
	budget, err := r.U64()
	if err != nil {
		return GasData{}, err
	}

	return GasData{Payment: payment, Owner: owner, Price: price, Budget: budget}, nil
}
