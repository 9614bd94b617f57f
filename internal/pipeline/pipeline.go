// Package pipeline runs an explicit, ordered chain of request interceptors in front of a handler.
package pipeline

import (
	"github.com/gin-gonic/gin"
)

// Decision is the outcome of one interceptor: continue, or short-circuit with a response.
type Decision struct {
	rejected bool
	status   int
	body     any
}

func Continue() Decision {
	return Decision{}
}

func Reject(status int, body any) Decision {
	return Decision{rejected: true, status: status, body: body}
}

func (d Decision) Rejected() bool { return d.rejected }
func (d Decision) Status() int    { return d.status }
func (d Decision) Body() any      { return d.body }

// Interceptor inspects a request before the handler runs.
// It may annotate the request (context, headers) and must not write the body itself.
type Interceptor interface {
	Intercept(c *gin.Context) Decision
}

// Finisher is implemented by interceptors that need the final response status.
// Finish runs after the handler, in reverse order, and only for interceptors that continued.
type Finisher interface {
	Finish(c *gin.Context)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(c *gin.Context) Decision

func (f InterceptorFunc) Intercept(c *gin.Context) Decision { return f(c) }

// Handler builds a gin middleware from interceptors. The first rejection aborts the chain with JSON.
func Handler(interceptors ...Interceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var finishers []Finisher
		defer func() {
			for i := len(finishers) - 1; i >= 0; i-- {
				finishers[i].Finish(c)
			}
		}()

		for _, ic := range interceptors {
			d := ic.Intercept(c)
			if d.Rejected() {
				c.AbortWithStatusJSON(d.Status(), d.Body())
				return
			}
			if c.IsAborted() {
				return
			}
			if f, ok := ic.(Finisher); ok {
				finishers = append(finishers, f)
			}
		}
		c.Next()
	}
}

// Error is the stable rejection body.
func Error(msg string) gin.H {
	return gin.H{"success": false, "error": msg}
}
