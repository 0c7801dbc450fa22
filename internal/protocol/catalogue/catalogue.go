package catalogue

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/protocol/frame"
)

// Opcodes understood by the production-test firmware.
const (
	OpReset             uint16 = 0x0C03
	OpRxTest            uint16 = 0x201D
	OpTxTest            uint16 = 0x201E
	OpTestEnd           uint16 = 0x201F
	OpUnmodulatedRxTx   uint16 = 0x4010
	OpRxReadbackTest    uint16 = 0x4020
	OpRxReadbackTestEnd uint16 = 0x4030
	OpTxContinuousStart uint16 = 0x4050
	OpTxContinuousEnd   uint16 = 0x4060
	OpSleep             uint16 = 0x4070
	OpXtalTrimming      uint16 = 0x4080
	OpOTPXtrimBDAddr    uint16 = 0x4090
	OpOTPRead           uint16 = 0x40A0
	OpOTPWrite          uint16 = 0x40B0
	OpRegisterRW        uint16 = 0x40C0
	OpCustomAction      uint16 = 0x40D0
)

// Sub-operations carried in the first parameter byte of multiplexed opcodes.
const (
	OTPOpReadXtrim        uint8 = 0x00
	OTPOpWriteXtrim       uint8 = 0x01
	OTPOpReadBDAddr       uint8 = 0x02
	OTPOpWriteBDAddr      uint8 = 0x03
	OTPOpReadEnableXtrim  uint8 = 0x04
	OTPOpWriteEnableXtrim uint8 = 0x05

	RegOpRead32  uint8 = 0x00
	RegOpWrite32 uint8 = 0x01
	RegOpRead16  uint8 = 0x02
	RegOpWrite16 uint8 = 0x03

	CustomOpWriteSN           uint8 = 0x10
	CustomOpReadSN            uint8 = 0x11
	CustomOpWriteSWVersion    uint8 = 0x12
	CustomOpReadSWVersion     uint8 = 0x13
	CustomOpWriteFlag         uint8 = 0x14
	CustomOpReadFlag          uint8 = 0x15
	CustomOpWritePSN          uint8 = 0x16
	CustomOpReadPSN           uint8 = 0x17
	CustomOpReadMAC           uint8 = 0x18
	CustomOpGoSleep           uint8 = 0x19
	CustomOpReadVBat          uint8 = 0x1A
	CustomOpWriteFPSensorZero uint8 = 0x1B
	CustomOpWriteBPSensorZero uint8 = 0x1C
	CustomOpWriteFPSensorWork uint8 = 0x1D
	CustomOpWriteBPSensorWork uint8 = 0x1E
)

const noSubOp = -1

var (
	ErrUnknownCommand = errors.New("catalogue: unknown command")
	ErrParamMismatch  = errors.New("catalogue: parameter layout mismatch")
)

// Entry describes one command shape. ParamLen < 0 marks a variable layout
// checked by Check.
type Entry struct {
	Name        string
	Opcode      uint16
	SubOp       int
	ParamLen    int
	Description string
	Check       func(params []byte) error
}

func (e Entry) matches(cmd frame.Command) bool {
	if e.Opcode != cmd.Opcode {
		return false
	}
	if e.SubOp != noSubOp && (len(cmd.Params) == 0 || int(cmd.Params[0]) != e.SubOp) {
		return false
	}
	if e.ParamLen >= 0 {
		return len(cmd.Params) == e.ParamLen
	}
	return e.Check == nil || e.Check(cmd.Params) == nil
}

// Entries is the command table, one row per builder in builders.go.
var Entries = []Entry{
	{Name: "reset", Opcode: OpReset, SubOp: noSubOp, ParamLen: 0, Description: "HCI reset"},
	{Name: "tx-test", Opcode: OpTxTest, SubOp: noSubOp, ParamLen: 3, Description: "LE transmitter test"},
	{Name: "rx-test", Opcode: OpRxTest, SubOp: noSubOp, ParamLen: 1, Description: "LE receiver test"},
	{Name: "test-end", Opcode: OpTestEnd, SubOp: noSubOp, ParamLen: 0, Description: "LE test end"},
	{Name: "dialog-tx-test", Opcode: OpTxTest, SubOp: noSubOp, ParamLen: 5, Description: "transmitter test with packet count"},
	{Name: "rx-readback-test", Opcode: OpRxReadbackTest, SubOp: noSubOp, ParamLen: 1, Description: "receiver test with readback"},
	{Name: "rx-readback-test-end", Opcode: OpRxReadbackTestEnd, SubOp: noSubOp, ParamLen: 0, Description: "end receiver readback test"},
	{Name: "unmodulated", Opcode: OpUnmodulatedRxTx, SubOp: noSubOp, ParamLen: 2, Description: "unmodulated tx/rx carrier"},
	{Name: "tx-continuous-start", Opcode: OpTxContinuousStart, SubOp: noSubOp, ParamLen: 2, Description: "start continuous transmission"},
	{Name: "tx-continuous-end", Opcode: OpTxContinuousEnd, SubOp: noSubOp, ParamLen: 0, Description: "end continuous transmission"},
	{Name: "sleep", Opcode: OpSleep, SubOp: noSubOp, ParamLen: 3, Description: "enter sleep mode"},
	{Name: "xtal-trimming", Opcode: OpXtalTrimming, SubOp: noSubOp, ParamLen: 3, Description: "crystal trim operation"},
	{Name: "otp-read-xtrim", Opcode: OpOTPXtrimBDAddr, SubOp: int(OTPOpReadXtrim), ParamLen: 7, Description: "read xtal trim from OTP"},
	{Name: "otp-write-xtrim", Opcode: OpOTPXtrimBDAddr, SubOp: int(OTPOpWriteXtrim), ParamLen: 7, Description: "write xtal trim to OTP"},
	{Name: "otp-read-enable-xtrim", Opcode: OpOTPXtrimBDAddr, SubOp: int(OTPOpReadEnableXtrim), ParamLen: 7, Description: "read xtal trim enable flag"},
	{Name: "otp-write-enable-xtrim", Opcode: OpOTPXtrimBDAddr, SubOp: int(OTPOpWriteEnableXtrim), ParamLen: 7, Description: "set xtal trim enable flag"},
	{Name: "otp-read-bdaddr", Opcode: OpOTPXtrimBDAddr, SubOp: int(OTPOpReadBDAddr), ParamLen: 7, Description: "read device address from OTP"},
	{Name: "otp-write-bdaddr", Opcode: OpOTPXtrimBDAddr, SubOp: int(OTPOpWriteBDAddr), ParamLen: 7, Description: "write device address to OTP"},
	{Name: "otp-read", Opcode: OpOTPRead, SubOp: noSubOp, ParamLen: 3, Description: "read OTP words"},
	{Name: "otp-write", Opcode: OpOTPWrite, SubOp: noSubOp, ParamLen: -1, Description: "write OTP words", Check: checkOTPWrite},
	{Name: "read-reg32", Opcode: OpRegisterRW, SubOp: int(RegOpRead32), ParamLen: 9, Description: "read 32-bit register"},
	{Name: "write-reg32", Opcode: OpRegisterRW, SubOp: int(RegOpWrite32), ParamLen: 9, Description: "write 32-bit register"},
	{Name: "read-reg16", Opcode: OpRegisterRW, SubOp: int(RegOpRead16), ParamLen: 9, Description: "read 16-bit register"},
	{Name: "write-reg16", Opcode: OpRegisterRW, SubOp: int(RegOpWrite16), ParamLen: 9, Description: "write 16-bit register"},
	{Name: "write-sn", Opcode: OpCustomAction, SubOp: int(CustomOpWriteSN), ParamLen: snParamLen, Description: "write serial number"},
	{Name: "read-sn", Opcode: OpCustomAction, SubOp: int(CustomOpReadSN), ParamLen: 1, Description: "read serial number"},
	{Name: "write-swversion", Opcode: OpCustomAction, SubOp: int(CustomOpWriteSWVersion), ParamLen: identityParamLen, Description: "write software version"},
	{Name: "read-swversion", Opcode: OpCustomAction, SubOp: int(CustomOpReadSWVersion), ParamLen: 1, Description: "read software version"},
	{Name: "write-flag", Opcode: OpCustomAction, SubOp: int(CustomOpWriteFlag), ParamLen: identityParamLen, Description: "write production flag"},
	{Name: "read-flag", Opcode: OpCustomAction, SubOp: int(CustomOpReadFlag), ParamLen: 1, Description: "read production flag"},
	{Name: "write-psn", Opcode: OpCustomAction, SubOp: int(CustomOpWritePSN), ParamLen: identityParamLen, Description: "write product serial number"},
	{Name: "read-psn", Opcode: OpCustomAction, SubOp: int(CustomOpReadPSN), ParamLen: 1, Description: "read product serial number"},
	{Name: "read-mac", Opcode: OpCustomAction, SubOp: int(CustomOpReadMAC), ParamLen: 1, Description: "read MAC address"},
	{Name: "go-sleep", Opcode: OpCustomAction, SubOp: int(CustomOpGoSleep), ParamLen: 1, Description: "put device to sleep"},
	{Name: "read-vbat", Opcode: OpCustomAction, SubOp: int(CustomOpReadVBat), ParamLen: 1, Description: "read battery voltage"},
	{Name: "write-fpsensor-zero", Opcode: OpCustomAction, SubOp: int(CustomOpWriteFPSensorZero), ParamLen: sensorParamLen, Description: "zero front pressure sensor"},
	{Name: "write-bpsensor-zero", Opcode: OpCustomAction, SubOp: int(CustomOpWriteBPSensorZero), ParamLen: sensorParamLen, Description: "zero back pressure sensor"},
	{Name: "write-fpsensor-work", Opcode: OpCustomAction, SubOp: int(CustomOpWriteFPSensorWork), ParamLen: sensorParamLen, Description: "front pressure sensor working point"},
	{Name: "write-bpsensor-work", Opcode: OpCustomAction, SubOp: int(CustomOpWriteBPSensorWork), ParamLen: sensorParamLen, Description: "back pressure sensor working point"},
}

// Lookup returns the table row with the given name.
func Lookup(name string) (Entry, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Identify returns the row describing cmd.
func Identify(cmd frame.Command) (Entry, bool) {
	for _, e := range Entries {
		if e.matches(cmd) {
			return e, true
		}
	}
	return Entry{}, false
}

// Validate checks cmd against the table. Unknown opcodes and known opcodes
// with an unexpected layout are both rejected.
func Validate(cmd frame.Command) error {
	if _, ok := Identify(cmd); ok {
		return nil
	}
	known := false
	for _, e := range Entries {
		if e.Opcode == cmd.Opcode {
			known = true
			break
		}
	}
	if !known {
		logs.Debugf("catalogue.Validate unknown opcode=0x%04x", cmd.Opcode)
		return fmt.Errorf("%w: opcode=0x%04x", ErrUnknownCommand, cmd.Opcode)
	}
	logs.Debugf("catalogue.Validate mismatch opcode=0x%04x params=%d", cmd.Opcode, len(cmd.Params))
	return fmt.Errorf("%w: opcode=0x%04x params=%d", ErrParamMismatch, cmd.Opcode, len(cmd.Params))
}

// Names returns every table name in sorted order.
func Names() []string {
	out := make([]string, 0, len(Entries))
	for _, e := range Entries {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func checkOTPWrite(params []byte) error {
	if len(params) < 3 {
		return fmt.Errorf("%w: otp-write header", ErrParamMismatch)
	}
	words := int(params[2])
	if len(params) != 3+4*words {
		return fmt.Errorf("%w: otp-write declares %d words, carries %d bytes", ErrParamMismatch, words, len(params)-3)
	}
	return nil
}
