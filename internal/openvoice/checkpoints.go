package openvoice

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iabetor/accentts/internal/core"
)

// CheckpointsURL 是 OpenVoice V2 模型文件的下载地址。
const CheckpointsURL = "https://myshell-public-repo-host.s3.amazonaws.com/openvoice/checkpoints_v2_0417.zip"

// Layout 是 OpenVoice 仓库中转换模型相关文件的位置。
type Layout struct {
	Root                string
	ConverterConfig     string
	ConverterCheckpoint string
	SESDir              string
	// SourceSE 是合成器默认说话人的音色向量文件。
	SourceSE string
}

// Discover 检查 <root>/checkpoints_v2 下的模型文件并选出源说话人音色文件。
// sourceSE 非空时直接使用该文件，不再查找 ses 目录。
func Discover(root, sourceSpeaker, sourceSE string) (*Layout, error) {
	base := filepath.Join(root, "checkpoints_v2")
	l := &Layout{
		Root:                root,
		ConverterConfig:     filepath.Join(base, "converter", "config.json"),
		ConverterCheckpoint: filepath.Join(base, "converter", "checkpoint.pth"),
		SESDir:              filepath.Join(base, "base_speakers", "ses"),
	}

	for _, p := range []string{l.ConverterConfig, l.ConverterCheckpoint} {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			return nil, missing(p)
		}
	}
	if sourceSE != "" {
		if abs, err := filepath.Abs(sourceSE); err == nil {
			sourceSE = abs
		}
		if info, err := os.Stat(sourceSE); err != nil || info.IsDir() {
			return nil, missing(sourceSE)
		}
		l.SourceSE = sourceSE
		return l, nil
	}
	if info, err := os.Stat(l.SESDir); err != nil || !info.IsDir() {
		return nil, missing(l.SESDir)
	}

	se, err := SourceSpeakerPath(l.SESDir, sourceSpeaker)
	if err != nil {
		return nil, err
	}
	l.SourceSE = se
	return l, nil
}

// SourceSpeakerPath 在 ses 目录中查找说话人音色文件。
// 依次尝试 小写且 '_' 换成 '-' 的名字、原名、kr、KR，都没有时取目录中第一个 .pth。
func SourceSpeakerPath(sesDir, key string) (string, error) {
	var names []string
	if key != "" {
		names = append(names, strings.ReplaceAll(strings.ToLower(key), "_", "-"), key)
	}
	names = append(names, "kr", "KR")

	for _, name := range names {
		p := filepath.Join(sesDir, name+".pth")
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}

	entries, err := os.ReadDir(sesDir)
	if err != nil {
		return "", missing(sesDir)
	}
	var pths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pth") {
			pths = append(pths, e.Name())
		}
	}
	if len(pths) == 0 {
		return "", core.Errorf(core.KindModelLoad, "openvoice",
			"在 %s 中找不到说话人音色文件 (*.pth)，请从 %s 下载模型", sesDir, CheckpointsURL)
	}
	sort.Strings(pths)
	return filepath.Join(sesDir, pths[0]), nil
}

func missing(path string) error {
	return core.E(core.KindModelLoad, "openvoice",
		fmt.Errorf("缺少模型文件 %s，请从 %s 下载并解压到 OpenVoice 目录", path, CheckpointsURL))
}
