// Package protocol implements the line-oriented wire format for time-series
// ingestion: one measurement row per newline-terminated line, with an escaped
// table name, comma-separated symbol (tag) pairs, space-separated typed
// column pairs, and an optional designated timestamp.
//
// The encoder is a pure, append-only byte buffer with a small state machine
// that enforces call ordering per row:
//
//	buf := protocol.NewBuffer()
//	buf.Table("sensors")
//	buf.Symbol("id", "a b")
//	buf.Float64Column("temp", 23.5)
//	buf.AtNanos(1700000000000000000)
//
// Symbols must precede typed columns within a row, a row is closed by At,
// AtNow, or an explicit timestamp, and at most one row is open at a time.
// Violations return a state error and leave the buffer unchanged, so a
// failed field write never corrupts the current row. The Buffer performs no
// I/O and is not safe for concurrent use.
package protocol

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ajitpratap0/linewire/pkg/errors"
)

// TimestampUnit is the resolution of the designated row timestamp, expressed
// as nanoseconds per unit.
type TimestampUnit int64

const (
	// Nanoseconds is the default designated timestamp resolution.
	Nanoseconds TimestampUnit = 1
	// Microseconds divides epoch nanos by 1e3 on the wire.
	Microseconds TimestampUnit = 1000
	// Milliseconds divides epoch nanos by 1e6 on the wire.
	Milliseconds TimestampUnit = 1000000
)

// op is a bitmask of row operations, used both as the operation identity and
// as the set of operations a state permits.
type op uint8

const (
	opTable op = 1 << iota
	opSymbol
	opColumn
	opAt
	opFlush
)

func (o op) descr() string {
	switch o {
	case opTable:
		return "table"
	case opSymbol:
		return "symbol"
	case opColumn:
		return "column"
	case opAt:
		return "at"
	case opFlush:
		return "flush"
	}
	return "unknown"
}

// state encodes the row cursor as the set of permitted next operations.
type state uint8

const (
	// No open row; a new row may start or buffered rows may be flushed.
	stateReady = state(opTable | opFlush)
	// Table name written, nothing else yet.
	stateTableWritten = state(opSymbol | opColumn)
	// At least one symbol written, no typed column yet.
	stateSymbolWritten = state(opSymbol | opColumn | opAt)
	// At least one typed column written; symbols are no longer allowed.
	stateColumnWritten = state(opColumn | opAt)
)

func (s state) hint() string {
	switch s {
	case stateReady:
		return "should have called `table` instead"
	case stateTableWritten:
		return "should have called `symbol` or a column method instead"
	case stateSymbolWritten:
		return "should have called `symbol`, a column method, or `at` instead"
	case stateColumnWritten:
		return "should have called a column method or `at` instead"
	}
	return "unknown state"
}

// Options tunes a Buffer. The zero value selects the defaults.
type Options struct {
	// InitBufferSize is the initial backing capacity (default 64 KiB).
	InitBufferSize int
	// MaxNameLen caps table and column name length in bytes (default 127).
	MaxNameLen int
	// TimestampUnit fixes the designated timestamp resolution (default nanos).
	TimestampUnit TimestampUnit
}

func (o Options) withDefaults() Options {
	if o.InitBufferSize <= 0 {
		o.InitBufferSize = 64 * 1024
	}
	if o.MaxNameLen <= 0 {
		o.MaxNameLen = 127
	}
	if o.TimestampUnit <= 0 {
		o.TimestampUnit = Nanoseconds
	}
	return o
}

// Buffer accumulates encoded rows. It is created empty, reused across
// flushes via Clear, and owned by a single goroutine at a time.
type Buffer struct {
	buf      []byte
	state    state
	rowCount int
	rowStart int // offset of the open row, for truncation on a failed close
	opts     Options
}

// NewBuffer returns an empty Buffer with default options.
func NewBuffer() *Buffer {
	return NewBufferWithOptions(Options{})
}

// NewBufferWithOptions returns an empty Buffer with the given options.
func NewBufferWithOptions(opts Options) *Buffer {
	opts = opts.withDefaults()
	return &Buffer{
		buf:   make([]byte, 0, opts.InitBufferSize),
		state: stateReady,
		opts:  opts,
	}
}

// checkState rejects an operation the current row state does not permit.
// The state is left untouched so the caller can recover: retry the right
// call, finish the row, or Clear.
func (b *Buffer) checkState(o op) error {
	if state(o)&b.state != 0 {
		return nil
	}
	return errors.Newf(errors.ErrorTypeState,
		"bad call to `%s`, %s", o.descr(), b.state.hint())
}

// Table begins a new row. It fails with an invalid-name error for a bad
// table name and a state error if a row is already open.
func (b *Buffer) Table(name string) error {
	if err := validateName("table", name, b.opts.MaxNameLen); err != nil {
		return err
	}
	if err := b.checkState(opTable); err != nil {
		return err
	}
	b.rowStart = len(b.buf)
	b.buf = appendEscapedUnquoted(b.buf, name)
	b.state = stateTableWritten
	return nil
}

// Symbol appends a tag column. Symbols must be written before any typed
// column in the row; the server relies on that ordering.
func (b *Buffer) Symbol(name, value string) error {
	if err := validateName("symbol", name, b.opts.MaxNameLen); err != nil {
		return err
	}
	if !utf8.ValidString(value) {
		return errors.Newf(errors.ErrorTypeEncoding,
			"symbol value for %q is not valid UTF-8", name)
	}
	if err := b.checkState(opSymbol); err != nil {
		return err
	}
	b.buf = append(b.buf, ',')
	b.buf = appendEscapedUnquoted(b.buf, name)
	b.buf = append(b.buf, '=')
	b.buf = appendEscapedUnquoted(b.buf, value)
	b.state = stateSymbolWritten
	return nil
}

// writeColumnKey validates the name and state, then writes the separator and
// escaped key. All value writes after a successful key write are infallible,
// which keeps the row well-formed on every return path.
func (b *Buffer) writeColumnKey(name string) error {
	if err := validateName("column", name, b.opts.MaxNameLen); err != nil {
		return err
	}
	if err := b.checkState(opColumn); err != nil {
		return err
	}
	// The first typed column is separated from the symbol section by a
	// space; later columns by commas. A state still permitting `symbol`
	// means no column has been written yet.
	if state(opSymbol)&b.state != 0 {
		b.buf = append(b.buf, ' ')
	} else {
		b.buf = append(b.buf, ',')
	}
	b.buf = appendEscapedUnquoted(b.buf, name)
	b.buf = append(b.buf, '=')
	b.state = stateColumnWritten
	return nil
}

// StringColumn appends a quoted string field.
func (b *Buffer) StringColumn(name, value string) error {
	if !utf8.ValidString(value) {
		return errors.Newf(errors.ErrorTypeEncoding,
			"string value for %q is not valid UTF-8", name)
	}
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	b.buf = append(b.buf, '"')
	b.buf = appendEscapedQuoted(b.buf, value)
	b.buf = append(b.buf, '"')
	return nil
}

// Int64Column appends a 64-bit signed integer field.
func (b *Buffer) Int64Column(name string, value int64) error {
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	b.buf = strconv.AppendInt(b.buf, value, 10)
	b.buf = append(b.buf, 'i')
	return nil
}

// Float64Column appends a 64-bit float field in the shortest decimal form
// that round-trips. Non-finite values use the server's spellings.
func (b *Buffer) Float64Column(name string, value float64) error {
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	b.buf = appendFloat(b.buf, value)
	return nil
}

// BoolColumn appends a boolean field as t or f.
func (b *Buffer) BoolColumn(name string, value bool) error {
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	if value {
		b.buf = append(b.buf, 't')
	} else {
		b.buf = append(b.buf, 'f')
	}
	return nil
}

// TimestampColumn appends a timestamp field with microsecond resolution.
func (b *Buffer) TimestampColumn(name string, value time.Time) error {
	return b.TimestampColumnMicros(name, value.UnixMicro())
}

// TimestampColumnMicros appends a timestamp field from raw epoch micros.
// Column timestamps carry an explicit unit suffix; only the designated row
// timestamp has its unit fixed by configuration.
func (b *Buffer) TimestampColumnMicros(name string, micros int64) error {
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	b.buf = strconv.AppendInt(b.buf, micros, 10)
	b.buf = append(b.buf, 't')
	return nil
}

// TimestampColumnNanos appends a timestamp field from raw epoch nanos, with
// the nanosecond unit suffix.
func (b *Buffer) TimestampColumnNanos(name string, nanos int64) error {
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	b.buf = strconv.AppendInt(b.buf, nanos, 10)
	b.buf = append(b.buf, 'n')
	return nil
}

// Float64ArrayColumn appends a homogeneous float64 tensor field with the
// given shape. See array.go for the binary layout.
func (b *Buffer) Float64ArrayColumn(name string, shape []int, values []float64) error {
	if err := validateArrayShape(shape, len(values)); err != nil {
		return err
	}
	if err := b.writeColumnKey(name); err != nil {
		return err
	}
	b.buf = appendFloat64Array(b.buf, shape, values)
	return nil
}

// At closes the row with an explicit designated timestamp, converted to the
// configured unit.
func (b *Buffer) At(value time.Time) error {
	return b.AtNanos(value.UnixNano())
}

// AtNanos closes the row with an explicit designated timestamp given in
// epoch nanoseconds.
func (b *Buffer) AtNanos(epochNanos int64) error {
	if err := b.checkState(opAt); err != nil {
		return err
	}
	b.buf = append(b.buf, ' ')
	b.buf = strconv.AppendInt(b.buf, epochNanos/int64(b.opts.TimestampUnit), 10)
	b.closeRow()
	return nil
}

// AtNow closes the row without a timestamp, deferring time assignment to the
// receiving server.
func (b *Buffer) AtNow() error {
	if err := b.checkState(opAt); err != nil {
		return err
	}
	b.closeRow()
	return nil
}

func (b *Buffer) closeRow() {
	b.buf = append(b.buf, '\n')
	b.rowCount++
	b.rowStart = len(b.buf)
	b.state = stateReady
}

// CancelRow discards the open row, if any, restoring the buffer to the end
// of the last complete row.
func (b *Buffer) CancelRow() {
	if b.state == stateReady {
		return
	}
	b.buf = b.buf[:b.rowStart]
	b.state = stateReady
}

// Clear resets all buffered bytes and row state. The backing storage is
// kept so a buffer can be reused across flushes without reallocating.
func (b *Buffer) Clear() {
	b.buf = b.buf[:0]
	b.state = stateReady
	b.rowCount = 0
	b.rowStart = 0
}

// Len returns the number of buffered bytes, including any open row.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// RowCount returns the number of complete rows in the buffer.
func (b *Buffer) RowCount() int {
	return b.rowCount
}

// InProgress reports whether a row is open, i.e. started but not yet closed
// by At or AtNow.
func (b *Buffer) InProgress() bool {
	return b.state != stateReady
}

// Bytes returns the encoded payload. The slice aliases the buffer's backing
// storage and is invalidated by the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// TimestampUnit returns the configured designated timestamp resolution.
func (b *Buffer) TimestampUnit() TimestampUnit {
	return b.opts.TimestampUnit
}

// Reserved characters in names and symbol values get a leading backslash.
// The quote is escaped here too so an unquoted token can never open a
// string section on the server side.
func mustEscapeUnquoted(ch byte) bool {
	switch ch {
	case ' ', ',', '=', '\n', '\r', '"', '\\':
		return true
	}
	return false
}

func mustEscapeQuoted(ch byte) bool {
	switch ch {
	case '\n', '\r', '"', '\\':
		return true
	}
	return false
}

func appendEscapedUnquoted(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if mustEscapeUnquoted(s[i]) {
			dst = append(dst, '\\')
		}
		dst = append(dst, s[i])
	}
	return dst
}

func appendEscapedQuoted(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if mustEscapeQuoted(s[i]) {
			dst = append(dst, '\\')
		}
		dst = append(dst, s[i])
	}
	return dst
}

func appendFloat(dst []byte, v float64) []byte {
	switch {
	case v != v: // NaN
		return append(dst, "NaN"...)
	case v > 1.7976931348623157e308: // +Inf
		return append(dst, "Infinity"...)
	case v < -1.7976931348623157e308: // -Inf
		return append(dst, "-Infinity"...)
	}
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}
