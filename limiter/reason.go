package limiter

// Reason admission reason, the string value is the stable reason_code
type Reason string

const (
	ReasonAllowed        Reason = "ALLOWED"
	ReasonRateExceeded   Reason = "RATE_EXCEEDED"
	ReasonWindowExceeded Reason = "WINDOW_EXCEEDED"
	ReasonQueueFull      Reason = "QUEUE_FULL"
	ReasonConfigInvalid  Reason = "CONFIG_INVALID"
)

type reasonText struct {
	en string
	cn string
}

var reasonTexts = map[Reason]reasonText{
	ReasonAllowed:        {"Request allowed", "请求已放行"},
	ReasonRateExceeded:   {"Request rate exceeded, please retry later", "请求频率超出限制，请稍后重试"},
	ReasonWindowExceeded: {"Too many requests in the current time window", "当前时间窗口内请求次数已达上限"},
	ReasonQueueFull:      {"Request queue is full, please retry later", "请求队列已满，请稍后重试"},
	ReasonConfigInvalid:  {"Invalid rate limit configuration", "限流配置无效"},
}

// Code stable machine code
func (r Reason) Code() string { return string(r) }

// Message English message
func (r Reason) Message() string {
	if t, ok := reasonTexts[r]; ok {
		return t.en
	}
	return string(r)
}

// MessageCN 中文消息
func (r Reason) MessageCN() string {
	if t, ok := reasonTexts[r]; ok {
		return t.cn
	}
	return string(r)
}
