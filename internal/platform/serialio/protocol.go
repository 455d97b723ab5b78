package serialio

import (
	"fmt"
	"strings"

	"github.com/wfunc/pinball-game/internal/errors"
)

// I/O板ASCII协议
// 一行一条命令，格式 CMD:field1,field2,...*CS，CS为星号前全部字符的
// 异或校验（两位大写十六进制），行以\n结尾。
//
// 下行命令:
//   RA  武装硬件规则
//   RC  解除硬件规则
//   DP  驱动器脉冲
//   DE  驱动器脉冲后保持
//   DD  驱动器关闭
// 上行报文:
//   SW  开关状态变化
const (
	cmdArmRule      = "RA"
	cmdClearRule    = "RC"
	cmdDrivePulse   = "DP"
	cmdDriveEnable  = "DE"
	cmdDriveDisable = "DD"
	cmdSwitchChange = "SW"
)

// 规则拓扑编号，与RA命令的mode字段对应
const (
	modePulseOnHitAndRelease          = 1
	modePulseOnHitAndEnableAndRelease = 2
	modePulseOnHit                    = 3
	modePulseOnHitWithDisable         = 4
)

// checksum 计算星号前字符的异或校验
func checksum(s string) byte {
	var cs byte
	for i := 0; i < len(s); i++ {
		cs ^= s[i]
	}
	return cs
}

// encodeFrame 编码一条下行命令
func encodeFrame(cmd string, fields ...string) []byte {
	body := cmd + ":" + strings.Join(fields, ",")
	return []byte(fmt.Sprintf("%s*%02X\n", body, checksum(body)))
}

// parseLine 解析一条上行报文
// 返回命令与字段列表，校验失败或格式错误时报错。
func parseLine(line string) (string, []string, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", nil, errors.New(errors.ErrInvalidResponse, "空报文")
	}

	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return "", nil, errors.Newf(errors.ErrInvalidResponse, "报文缺少校验: %q", line)
	}

	body := line[:star]
	var want byte
	if _, err := fmt.Sscanf(line[star+1:], "%02X", &want); err != nil {
		return "", nil, errors.Newf(errors.ErrInvalidResponse, "校验格式错误: %q", line)
	}
	if got := checksum(body); got != want {
		return "", nil, errors.Newf(errors.ErrInvalidResponse,
			"校验不匹配: %q 期望%02X 实际%02X", line, want, got)
	}

	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return "", nil, errors.Newf(errors.ErrInvalidResponse, "报文缺少命令: %q", line)
	}

	cmd := body[:colon]
	payload := body[colon+1:]
	if payload == "" {
		return cmd, nil, nil
	}
	return cmd, strings.Split(payload, ","), nil
}

// powerPercent 功率转百分比整数，协议不传小数
func powerPercent(power float64) int {
	return int(power*100 + 0.5)
}

// boolField 布尔转协议字段
func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
