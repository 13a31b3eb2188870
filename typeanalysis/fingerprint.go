package typeanalysis

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/speakeasy-api/blockjit"
)

// Fingerprint returns a deterministic hex digest of every annotation in list:
// the TargetType of each instruction and the resolved type of each result and
// operand. Two lists analysed from identical copies have the same fingerprint.
func Fingerprint(list *blockjit.InstructionList) string {
	if list == nil {
		return "nil"
	}
	h := sha256.New()
	binary.Write(h, binary.LittleEndian, uint64(list.Len()))
	for i, ins := range list.All() {
		binary.Write(h, binary.LittleEndian, uint64(i))
		binary.Write(h, binary.LittleEndian, uint64(ins.Op))
		h.Write([]byte{byte(ins.TargetType), resultType(ins)})
		binary.Write(h, binary.LittleEndian, uint64(len(ins.Args)))
		for _, arg := range ins.Args {
			t := byte(blockjit.Unknown)
			if arg.Value != nil {
				t = byte(arg.Value.Type)
			}
			h.Write([]byte{byte(arg.Type), t})
		}
		if ins.Variable != nil {
			h.Write([]byte(ins.Variable.ID))
		}
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func resultType(ins *blockjit.Instruction) byte {
	if ins.Result == nil {
		return 0xff
	}
	return byte(ins.Result.Type)
}
