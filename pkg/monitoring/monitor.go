package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	QuestionsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_questions_generated_total",
			Help: "Questions added to a bank, by type and source (local/ai)",
		},
		[]string{"type", "source"},
	)

	AnswersGraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_graded_total",
			Help: "Graded answers, by question type and verdict",
		},
		[]string{"type", "verdict"},
	)

	AICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_ai_calls_total",
			Help: "Calls to the AI completion backend, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	AICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_ai_call_duration_seconds",
			Help:    "Duration of AI completion calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)
)

// Init 显式注册所有指标，由进程入口调用一次
func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(QuestionsGenerated)
	prometheus.MustRegister(AnswersGraded)
	prometheus.MustRegister(AICalls)
	prometheus.MustRegister(AICallDuration)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

// TimeAICall 作用域计时器：在 AI 调用前获取，调用结束后带结果回报。
//
//	done := monitoring.TimeAICall("generate")
//	...
//	done("ok")
func TimeAICall(operation string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		AICallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		AICalls.WithLabelValues(operation, outcome).Inc()
	}
}

// RecordGrade 判分指标上报
func RecordGrade(questionType string, isCorrect bool) {
	verdict := "wrong"
	if isCorrect {
		verdict = "correct"
	}
	AnswersGraded.WithLabelValues(questionType, verdict).Inc()
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
