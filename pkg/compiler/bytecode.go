// rewrite/pkg/compiler/bytecode.go

package compiler

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/scripting"
)

const (
	Version    = 2
	HeaderSize = 28

	checksumOffset = HeaderSize - 4
	maxStringLen   = 1 << 20
)

var Magic = [4]byte{'R', 'W', 'B', 'C'}

// Header prefixes a bytecode file. Checksum is the CRC-32 of the header fields
// before it followed by everything after the header.
type Header struct {
	Magic       [4]byte
	Version     uint16
	Flags       uint16
	NumScopes   uint32
	NumHelpers  uint32
	NumScripts  uint32
	NumRulesets uint32
	Checksum    uint32
}

// Operand payload tags.
const (
	valueBool byte = iota + 1
	valueInt
	valueString
)

// EncodeBundle serializes a compiled bundle. Variables, callbacks and scopes are
// stored by name. Strings longer than the decoder accepts are rejected here.
func EncodeBundle(b *Bundle) ([]byte, error) {
	e := &encoder{}
	e.buf.Write(make([]byte, HeaderSize))

	scopeNames := b.Scopes.Names()
	for _, name := range scopeNames {
		s, _ := b.Scopes.Lookup(name)
		settings, err := json.Marshal(s.Settings())
		if err != nil {
			return nil, compileError("cannot encode scope settings", err, map[string]interface{}{"scope": name})
		}
		e.writeString(name)
		e.writeString(string(settings))
		if e.err != nil {
			return nil, compileError("cannot encode scope", e.err, map[string]interface{}{"scope": name})
		}
	}

	helperNames := sortedScriptNames(b.Helpers)
	for _, name := range helperNames {
		if err := e.writeScript(name, b.Helpers[name]); err != nil {
			return nil, compileError("cannot encode helper", err, map[string]interface{}{"helper": name})
		}
	}

	scriptNames := sortedScriptNames(b.Scripts)
	for _, name := range scriptNames {
		if err := e.writeScript(name, b.Scripts[name]); err != nil {
			return nil, compileError("cannot encode script", err, map[string]interface{}{"script": name})
		}
	}

	for _, rs := range b.Rulesets {
		e.writeString(rs.Name())
		e.writeUint32(uint32(rs.Len()))
		for i, instr := range rs.Instructions() {
			if err := e.writeInstruction(instr); err != nil {
				return nil, withFields(err, map[string]interface{}{"ruleset": rs.Name(), "instruction": i})
			}
		}
		if e.err != nil {
			return nil, compileError("cannot encode ruleset", e.err, map[string]interface{}{"ruleset": rs.Name()})
		}
	}

	header := Header{
		Magic:       Magic,
		Version:     Version,
		NumScopes:   uint32(len(scopeNames)),
		NumHelpers:  uint32(len(helperNames)),
		NumScripts:  uint32(len(scriptNames)),
		NumRulesets: uint32(len(b.Rulesets)),
	}
	head := new(bytes.Buffer)
	if err := binary.Write(head, binary.LittleEndian, header); err != nil {
		return nil, err
	}

	data := e.buf.Bytes()
	copy(data, head.Bytes())
	binary.LittleEndian.PutUint32(data[checksumOffset:HeaderSize], checksum(data))
	return data, nil
}

// checksum covers the header up to the checksum field and the whole body.
func checksum(data []byte) uint32 {
	sum := crc32.ChecksumIEEE(data[:checksumOffset])
	return crc32.Update(sum, crc32.IEEETable, data[HeaderSize:])
}

func sortedScriptNames(scripts map[string]scripting.Script) []string {
	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) writeUint32(n uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	e.buf.Write(b[:])
}

func (e *encoder) writeString(s string) {
	if len(s) > maxStringLen {
		if e.err == nil {
			e.err = fmt.Errorf("string of %d bytes exceeds limit of %d", len(s), maxStringLen)
		}
		return
	}
	e.writeUint32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) writeScript(name string, script scripting.Script) error {
	e.writeString(name)
	e.writeUint32(uint32(len(script.Params)))
	for _, p := range script.Params {
		e.writeString(p)
	}
	e.writeString(script.Body)
	return e.err
}

func (e *encoder) writeInstruction(instr rewrite.Instruction) error {
	e.buf.WriteByte(byte(instr.Opcode()))
	switch in := instr.(type) {
	case rewrite.Nop, rewrite.StopAll:
	case rewrite.SetBool:
		e.writeOperand(in.Var, rewrite.BoolValue(in.Value))
	case rewrite.SetInt:
		e.writeOperand(in.Var, rewrite.IntValue(in.Value))
	case rewrite.SetString:
		e.writeOperand(in.Var, rewrite.StringValue(in.Value))
	case rewrite.IsEqualBool:
		e.writeOperand(in.Var, rewrite.BoolValue(in.Value))
	case rewrite.IsEqualInt:
		e.writeOperand(in.Var, rewrite.IntValue(in.Value))
	case rewrite.IsEqualString:
		e.writeOperand(in.Var, rewrite.StringValue(in.Value))
	case rewrite.IsNotEqualBool:
		e.writeOperand(in.Var, rewrite.BoolValue(in.Value))
	case rewrite.IsNotEqualInt:
		e.writeOperand(in.Var, rewrite.IntValue(in.Value))
	case rewrite.IsNotEqualString:
		e.writeOperand(in.Var, rewrite.StringValue(in.Value))
	case rewrite.Call:
		if in.Callback == nil {
			return compileError("CALL without callback", nil, nil)
		}
		e.writeString(in.Callback.ID)
	case rewrite.ActivateScope:
		if in.Scope == nil {
			return compileError("ACTIVATE_SCOPE without scope", nil, nil)
		}
		e.writeString(in.Scope.Name())
	default:
		return compileError("instruction cannot be encoded", nil,
			map[string]interface{}{"op": instr.Opcode().String()})
	}
	return nil
}

func (e *encoder) writeOperand(v *rewrite.Variable, val rewrite.Value) {
	e.writeString(v.Name())
	switch val.Type() {
	case rewrite.TypeBool:
		e.buf.WriteByte(valueBool)
		if val.AsBool() {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}
	case rewrite.TypeInt:
		e.buf.WriteByte(valueInt)
		e.writeUint32(uint32(val.AsInt()))
	default:
		e.buf.WriteByte(valueString)
		e.writeString(string(val.AsString()))
	}
}

// WriteBytecodeToFile encodes b and writes it to filename.
func WriteBytecodeToFile(filename string, b *Bundle) error {
	data, err := EncodeBundle(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}
	logging.Logger.Info().Msgf("Successfully wrote bytecode file: %s", filename)
	return nil
}

// DecodeBytecode turns a bytecode file back into its rule-file form, with every
// instruction in raw form. Compile it to resolve names.
func DecodeBytecode(data []byte) (*RuleFile, error) {
	r := bytes.NewReader(data)
	var header Header
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, bytecodeError("truncated header", err)
	}
	if header.Magic != Magic {
		return nil, bytecodeError("bad magic", nil)
	}
	if header.Version != Version {
		return nil, bytecodeError(fmt.Sprintf("unsupported version %d", header.Version), nil)
	}
	if checksum(data) != header.Checksum {
		return nil, bytecodeError("checksum mismatch", nil)
	}

	d := &decoder{r: r}
	file := &RuleFile{}

	for i := uint32(0); i < header.NumScopes && d.err == nil; i++ {
		def := ScopeDef{Name: d.readString()}
		if raw := d.readString(); d.err == nil {
			if err := json.Unmarshal([]byte(raw), &def.Settings); err != nil {
				return nil, bytecodeError("bad scope settings", err)
			}
		}
		file.Scopes = append(file.Scopes, def)
	}

	file.Helpers = d.scripts(header.NumHelpers)
	file.Scripts = d.scripts(header.NumScripts)

	for i := uint32(0); i < header.NumRulesets && d.err == nil; i++ {
		def := RulesetDef{Name: d.readString()}
		n := d.count()
		for j := uint32(0); j < n && d.err == nil; j++ {
			def.Instructions = append(def.Instructions, d.instruction())
		}
		file.Rulesets = append(file.Rulesets, def)
	}

	if d.err != nil {
		return nil, bytecodeError("malformed body", d.err)
	}
	if r.Len() != 0 {
		return nil, bytecodeError(fmt.Sprintf("%d trailing bytes", r.Len()), nil)
	}
	return file, nil
}

// LoadBytecodeFile reads a bytecode file and compiles it against env.
func LoadBytecodeFile(filename string, env Environment) (*Bundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeParse, "failed to read bytecode file", err,
			map[string]interface{}{"path": filename})
	}
	file, err := DecodeBytecode(data)
	if err != nil {
		return nil, err
	}
	return Compile(file, env)
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) readUint32() uint32 {
	if d.err != nil {
		return 0
	}
	var n uint32
	d.err = binary.Read(d.r, binary.LittleEndian, &n)
	return n
}

// count reads a length prefix that cannot exceed the remaining input.
func (d *decoder) count() uint32 {
	n := d.readUint32()
	if d.err == nil && int64(n) > int64(d.r.Len()) {
		d.err = io.ErrUnexpectedEOF
		return 0
	}
	return n
}

func (d *decoder) readByte() byte {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	d.err = err
	return b
}

func (d *decoder) readString() string {
	n := d.count()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("string of %d bytes exceeds limit", n)
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
		return ""
	}
	return string(b)
}

func (d *decoder) scripts(n uint32) map[string]scripting.Script {
	if n == 0 {
		return nil
	}
	scripts := make(map[string]scripting.Script)
	for i := uint32(0); i < n && d.err == nil; i++ {
		name := d.readString()
		params := d.count()
		var script scripting.Script
		for j := uint32(0); j < params && d.err == nil; j++ {
			script.Params = append(script.Params, d.readString())
		}
		script.Body = d.readString()
		scripts[name] = script
	}
	return scripts
}

func (d *decoder) instruction() InstructionDef {
	op := rewrite.Opcode(d.readByte())
	if d.err != nil {
		return InstructionDef{}
	}
	if !op.Valid() {
		d.err = fmt.Errorf("unknown opcode %d", op)
		return InstructionDef{}
	}

	in := InstructionDef{Op: op.String()}
	switch op {
	case rewrite.NOP, rewrite.STOP_ALL:
	case rewrite.CALL:
		in.Callback = d.readString()
	case rewrite.ACTIVATE_SCOPE:
		in.Scope = d.readString()
	case rewrite.SET_VARIABLE, rewrite.IS_EQUAL_VARIABLE, rewrite.IS_NOT_EQUAL_VARIABLE:
		d.err = fmt.Errorf("reserved opcode %s", op)
	default:
		in.Var = d.readString()
		in.Value = d.value()
	}
	return in
}

func (d *decoder) value() interface{} {
	switch tag := d.readByte(); tag {
	case valueBool:
		return d.readByte() != 0
	case valueInt:
		return int64(int32(d.readUint32()))
	case valueString:
		return d.readString()
	default:
		if d.err == nil {
			d.err = fmt.Errorf("unknown value tag %d", tag)
		}
		return nil
	}
}

func bytecodeError(msg string, err error) error {
	logging.Logger.Error().Err(err).Msg("Invalid bytecode file: " + msg)
	return logging.NewError(logging.ErrorTypeParse, "invalid bytecode file: "+msg, err, nil)
}
