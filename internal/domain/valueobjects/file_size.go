package valueobjects

import "fmt"

// FileSize 文件大小值对象
type FileSize int64

// NewFileSize 创建文件大小值对象，负数按0处理
func NewFileSize(bytes int64) FileSize {
	if bytes < 0 {
		return FileSize(0)
	}
	return FileSize(bytes)
}

// Bytes 返回字节数
func (f FileSize) Bytes() int64 {
	return int64(f)
}

// Format 格式化为人类可读的字符串
func (f FileSize) Format() string {
	size := float64(f)
	units := []string{"B", "KB", "MB", "GB", "TB"}

	unitIndex := 0
	for size >= 1024 && unitIndex < len(units)-1 {
		size /= 1024
		unitIndex++
	}

	if unitIndex == 0 {
		return fmt.Sprintf("%d %s", int64(size), units[unitIndex])
	}
	return fmt.Sprintf("%.2f %s", size, units[unitIndex])
}

func (f FileSize) String() string {
	return f.Format()
}
