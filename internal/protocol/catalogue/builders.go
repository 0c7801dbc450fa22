package catalogue

import (
	"fmt"

	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/frame"
	"github.com/danmuck/hcilink/internal/protocol/params"
)

const (
	// identity strings occupy 15 bytes; the rest of the block is zero.
	identityValueLen = 15
	snParamLen       = 25
	identityParamLen = 30
	sensorParamLen   = 30

	otpXtrimParamLen = 7
	registerParamLen = 9

	// MaxOTPWords keeps 3+4*n inside the 8-bit length field.
	MaxOTPWords = (protocol.MaxParamLen - 3) / 4
)

// Unmodulated carrier modes.
const (
	UnmodulatedTx  uint8 = 'T'
	UnmodulatedRx  uint8 = 'R'
	UnmodulatedOff uint8 = 'O'
)

func build(opcode uint16, size int, fill func(w *params.Writer)) frame.Command {
	w := params.NewWriter(size)
	if fill != nil {
		fill(w)
	}
	return frame.Command{Opcode: opcode, Params: w.Params()}
}

func Reset() frame.Command {
	return build(OpReset, 0, nil)
}

func TxTest(channel, length, payload uint8) frame.Command {
	return build(OpTxTest, 3, func(w *params.Writer) {
		w.U8(channel).U8(length).U8(payload)
	})
}

func RxTest(channel uint8) frame.Command {
	return build(OpRxTest, 1, func(w *params.Writer) { w.U8(channel) })
}

func TestEnd() frame.Command {
	return build(OpTestEnd, 0, nil)
}

// DialogTxTest is TxTest extended with a packet count; it shares the opcode.
func DialogTxTest(channel, length, payload uint8, packets uint16) frame.Command {
	return build(OpTxTest, 5, func(w *params.Writer) {
		w.U8(channel).U8(length).U8(payload).U16(packets)
	})
}

func RxReadbackTest(channel uint8) frame.Command {
	return build(OpRxReadbackTest, 1, func(w *params.Writer) { w.U8(channel) })
}

func RxReadbackTestEnd() frame.Command {
	return build(OpRxReadbackTestEnd, 0, nil)
}

func UnmodulatedRxTx(mode, channel uint8) frame.Command {
	return build(OpUnmodulatedRxTx, 2, func(w *params.Writer) { w.U8(mode).U8(channel) })
}

func TxContinuousStart(channel, payloadType uint8) frame.Command {
	return build(OpTxContinuousStart, 2, func(w *params.Writer) { w.U8(channel).U8(payloadType) })
}

func TxContinuousEnd() frame.Command {
	return build(OpTxContinuousEnd, 0, nil)
}

func Sleep(sleepType, minutes, seconds uint8) frame.Command {
	return build(OpSleep, 3, func(w *params.Writer) {
		w.U8(sleepType).U8(minutes).U8(seconds)
	})
}

func XtalTrimming(operation uint8, trimOrDelta uint16) frame.Command {
	return build(OpXtalTrimming, 3, func(w *params.Writer) { w.U8(operation).U16(trimOrDelta) })
}

func otpXtrim(op uint8, fill func(w *params.Writer)) frame.Command {
	return build(OpOTPXtrimBDAddr, otpXtrimParamLen, func(w *params.Writer) {
		w.U8(op)
		if fill != nil {
			fill(w)
		}
		w.Zero(otpXtrimParamLen - w.Len())
	})
}

func OTPReadXtrim() frame.Command {
	return otpXtrim(OTPOpReadXtrim, nil)
}

func OTPWriteXtrim(trim uint16) frame.Command {
	return otpXtrim(OTPOpWriteXtrim, func(w *params.Writer) { w.U16(trim) })
}

func OTPReadEnableXtrim() frame.Command {
	return otpXtrim(OTPOpReadEnableXtrim, nil)
}

func OTPWriteEnableXtrim() frame.Command {
	return otpXtrim(OTPOpWriteEnableXtrim, func(w *params.Writer) { w.U8(0x10) })
}

func OTPReadBDAddr() frame.Command {
	return otpXtrim(OTPOpReadBDAddr, nil)
}

// OTPWriteBDAddr takes the address least-significant byte first.
func OTPWriteBDAddr(addr [6]byte) frame.Command {
	return otpXtrim(OTPOpWriteBDAddr, func(w *params.Writer) { w.Bytes(addr[:]) })
}

func OTPRead(address uint16, words uint8) frame.Command {
	return build(OpOTPRead, 3, func(w *params.Writer) { w.U16(address).U8(words) })
}

func OTPWrite(address uint16, words []uint32) (frame.Command, error) {
	if len(words) > MaxOTPWords {
		return frame.Command{}, fmt.Errorf("%w: otp-write %d words, max %d",
			protocol.ErrInvalidLength, len(words), MaxOTPWords)
	}
	return build(OpOTPWrite, 3+4*len(words), func(w *params.Writer) {
		w.U16(address).U8(uint8(len(words)))
		for _, word := range words {
			w.U32(word)
		}
	}), nil
}

func register(op uint8, addr, value uint32, width int) frame.Command {
	return build(OpRegisterRW, registerParamLen, func(w *params.Writer) {
		w.U8(op).U32(addr)
		switch width {
		case 32:
			w.U32(value)
		case 16:
			w.U16(uint16(value)).Zero(2)
		default:
			w.Zero(4)
		}
	})
}

func ReadReg32(addr uint32) frame.Command {
	return register(RegOpRead32, addr, 0, 0)
}

func WriteReg32(addr, value uint32) frame.Command {
	return register(RegOpWrite32, addr, value, 32)
}

func ReadReg16(addr uint32) frame.Command {
	return register(RegOpRead16, addr, 0, 0)
}

func WriteReg16(addr uint32, value uint16) frame.Command {
	return register(RegOpWrite16, addr, uint32(value), 16)
}

func customAction(op uint8) frame.Command {
	return build(OpCustomAction, 1, func(w *params.Writer) { w.U8(op) })
}

func writeIdentity(op uint8, value string, size int) (frame.Command, error) {
	w := params.NewWriter(size)
	w.U8(op)
	if err := w.Fixed([]byte(value), identityValueLen); err != nil {
		return frame.Command{}, fmt.Errorf("catalogue: sub-op 0x%02x: %w", op, err)
	}
	w.Zero(size - w.Len())
	return frame.Command{Opcode: OpCustomAction, Params: w.Params()}, nil
}

func sensorAction(op uint8) frame.Command {
	return build(OpCustomAction, sensorParamLen, func(w *params.Writer) {
		w.U8(op).Zero(sensorParamLen - 1)
	})
}

func WriteSN(value string) (frame.Command, error) {
	return writeIdentity(CustomOpWriteSN, value, snParamLen)
}

func ReadSN() frame.Command {
	return customAction(CustomOpReadSN)
}

func WriteSWVersion(value string) (frame.Command, error) {
	return writeIdentity(CustomOpWriteSWVersion, value, identityParamLen)
}

func ReadSWVersion() frame.Command {
	return customAction(CustomOpReadSWVersion)
}

func WriteFlag(value string) (frame.Command, error) {
	return writeIdentity(CustomOpWriteFlag, value, identityParamLen)
}

func ReadFlag() frame.Command {
	return customAction(CustomOpReadFlag)
}

func WritePSN(value string) (frame.Command, error) {
	return writeIdentity(CustomOpWritePSN, value, identityParamLen)
}

func ReadPSN() frame.Command {
	return customAction(CustomOpReadPSN)
}

func ReadMAC() frame.Command {
	return customAction(CustomOpReadMAC)
}

func GoSleep() frame.Command {
	return customAction(CustomOpGoSleep)
}

func ReadVBat() frame.Command {
	return customAction(CustomOpReadVBat)
}

func WriteFPSensorZero() frame.Command {
	return sensorAction(CustomOpWriteFPSensorZero)
}

func WriteBPSensorZero() frame.Command {
	return sensorAction(CustomOpWriteBPSensorZero)
}

func WriteFPSensorWork() frame.Command {
	return sensorAction(CustomOpWriteFPSensorWork)
}

func WriteBPSensorWork() frame.Command {
	return sensorAction(CustomOpWriteBPSensorWork)
}
