package serialio

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	apperrors "github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/platform"
)

// fakePort 内存串口：写入进缓冲区，读取来自管道
type fakePort struct {
	mu     sync.Mutex
	writes bytes.Buffer

	reader *io.PipeReader
	feeder *io.PipeWriter
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{reader: r, feeder: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.reader.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes.Write(b)
}

func (p *fakePort) Close() error {
	p.feeder.Close()
	return p.reader.Close()
}

// feed 模拟板卡上行一行报文
func (p *fakePort) feed(line string) {
	io.WriteString(p.feeder, line)
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := strings.TrimRight(p.writes.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func newTestPlatform() (*SerialPlatform, *fakePort) {
	port := newFakePort()
	p := newWithPort(config.SerialPortConfig{Port: "fake"}, port, zap.NewNop())
	return p, port
}

func settings(p *SerialPlatform, swNum, drvNum string) (platform.SwitchSettings, platform.DriverSettings) {
	sw := platform.SwitchSettings{
		HwSwitch: p.ConfigureSwitch(swNum),
		Debounce: true,
	}
	drv := platform.DriverSettings{
		HwDriver: p.ConfigureDriver(drvNum),
		Pulse:    platform.PulseSettings{DurationMs: 10, Power: 1.0},
		Recycle:  true,
	}
	return sw, drv
}

func TestSerialPlatform_ConfigureDedupes(t *testing.T) {
	p, _ := newTestPlatform()

	assert.Same(t, p.ConfigureSwitch("10"), p.ConfigureSwitch("10"))
	assert.Same(t, p.ConfigureDriver("3"), p.ConfigureDriver("3"))
}

func TestSerialPlatform_ArmRuleFrames(t *testing.T) {
	p, port := newTestPlatform()
	sw, drv := settings(p, "10", "3")

	require.NoError(t, p.SetPulseOnHitAndReleaseRule(sw, drv))
	require.NoError(t, p.SetPulseOnHitRule(sw, drv))

	hold := drv
	hold.Hold = &platform.HoldSettings{Power: 0.25}
	require.NoError(t, p.SetPulseOnHitAndEnableAndReleaseRule(sw, hold))

	disable := platform.SwitchSettings{HwSwitch: p.ConfigureSwitch("11"), Invert: true}
	require.NoError(t, p.SetPulseOnHitAndEnableAndReleaseAndDisableRule(sw, disable, hold))

	lines := port.written()
	require.Len(t, lines, 4)

	// 校验体部字段布局，校验码由编码器保证
	assert.True(t, strings.HasPrefix(lines[0], "RA:1,10,0,1,3,10,100,0,1*"))
	assert.True(t, strings.HasPrefix(lines[1], "RA:3,10,0,1,3,10,100,0,1*"))
	assert.True(t, strings.HasPrefix(lines[2], "RA:2,10,0,1,3,10,100,25,1*"))
	assert.True(t, strings.HasPrefix(lines[3], "RA:4,10,0,1,3,10,100,25,1,11,1*"))
}

func TestSerialPlatform_ClearAndDriverFrames(t *testing.T) {
	p, port := newTestPlatform()
	sw, drv := settings(p, "10", "3")

	require.NoError(t, p.ClearHwRule(sw, drv))
	require.NoError(t, p.PulseDriver(drv))

	hold := drv
	hold.Hold = &platform.HoldSettings{Power: 0.5}
	require.NoError(t, p.EnableDriver(hold))
	require.NoError(t, p.DisableDriver(drv))

	lines := port.written()
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "RC:10,3*"))
	assert.True(t, strings.HasPrefix(lines[1], "DP:3,10,100*"))
	assert.True(t, strings.HasPrefix(lines[2], "DE:3,10,100,50*"))
	assert.True(t, strings.HasPrefix(lines[3], "DD:3*"))
}

func TestSerialPlatform_EnableRequiresHold(t *testing.T) {
	p, port := newTestPlatform()
	_, drv := settings(p, "10", "3")

	err := p.EnableDriver(drv)
	assert.True(t, apperrors.Is(err, apperrors.ErrCommandFailed))
	assert.Empty(t, port.written())
}

func TestSerialPlatform_SwitchChangeDispatch(t *testing.T) {
	p, port := newTestPlatform()
	p.ConfigureSwitch("10")

	type change struct {
		number string
		state  bool
	}
	changes := make(chan change, 4)
	p.SetSwitchChangeCallback(func(number string, state bool) {
		changes <- change{number, state}
	})

	p.Start()
	defer p.Stop()

	port.feed(string(encodeFrame(cmdSwitchChange, "10", "1")))

	select {
	case c := <-changes:
		assert.Equal(t, change{"10", true}, c)
	case <-time.After(time.Second):
		t.Fatal("未收到开关变化回调")
	}

	state, err := p.GetSwitchState("10")
	require.NoError(t, err)
	assert.True(t, state)

	// 无效报文被丢弃，不影响后续解析
	port.feed("SW:10,0*00\n")
	port.feed(string(encodeFrame(cmdSwitchChange, "10", "0")))

	select {
	case c := <-changes:
		assert.Equal(t, change{"10", false}, c)
	case <-time.After(time.Second):
		t.Fatal("未收到第二次开关变化回调")
	}
}

func TestSerialPlatform_GetSwitchStateUnregistered(t *testing.T) {
	p, _ := newTestPlatform()

	_, err := p.GetSwitchState("99")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
