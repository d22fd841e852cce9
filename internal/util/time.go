package util

import "time"

// NowISO 秒级精度的 UTC ISO-8601 时间戳，与历史记录文件中的格式保持一致
func NowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// ParseISO 解析历史记录中的时间戳，统一转为 UTC
func ParseISO(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
