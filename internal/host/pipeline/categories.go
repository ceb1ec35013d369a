package pipeline

const (
	// CategoryAuthN verifies the identity of the requester.
	CategoryAuthN Category = "authentication"

	// CategoryAuthZ determines if the authenticated entity has permission for the requested action.
	CategoryAuthZ Category = "authorization"

	// CategoryRateLimiting enforces request rate limits to prevent abuse.
	CategoryRateLimiting Category = "rate-limiting"

	// CategoryValidation checks request structure, schema, or business rules.
	CategoryValidation Category = "validation"

	// CategoryContent transforms or enriches request/response bodies.
	CategoryContent Category = "content"

	// CategoryObservability provides metrics, traces, and logging without blocking requests.
	CategoryObservability Category = "observability"
)

// Category groups plugins by responsibility; it decides execution order and
// what their decisions are allowed to do.
type Category string

const (
	// ExecSerial executes plugins sequentially in registration order.
	ExecSerial ExecutionMode = iota

	// ExecParallel executes plugins concurrently via goroutines.
	ExecParallel
)

// ExecutionMode controls how the host executes plugins within a category:
// serial (ordered, one-at-a-time) or parallel (concurrent).
type ExecutionMode int

// CategoryProperties represents execution semantics for each Category.
type CategoryProperties struct {
	// Mode determines if plugins execute sequentially or concurrently.
	Mode ExecutionMode

	// CanShortCircuit when true lets a plugin's continue=false decision
	// answer the client directly and stop the pipeline.
	CanShortCircuit bool

	// CanMutate when true lets a plugin's mutated envelope replace the
	// exchange for the rest of the pipeline. Mutation is serial-only.
	CanMutate bool
}

// categoryProps maps each category to its execution properties.
// The pipeline enforces these constraints during exchange processing.
var categoryProps = map[Category]CategoryProperties{
	CategoryAuthN:         {Mode: ExecSerial, CanShortCircuit: true, CanMutate: false},
	CategoryAuthZ:         {Mode: ExecSerial, CanShortCircuit: true, CanMutate: false},
	CategoryRateLimiting:  {Mode: ExecSerial, CanShortCircuit: true, CanMutate: false},
	CategoryValidation:    {Mode: ExecSerial, CanShortCircuit: true, CanMutate: false},
	CategoryContent:       {Mode: ExecSerial, CanShortCircuit: true, CanMutate: true},
	CategoryObservability: {Mode: ExecParallel, CanShortCircuit: false, CanMutate: false},
}

// OrderedCategories defines the pipeline execution order.
// Categories execute in this sequence for each exchange.
var OrderedCategories = []Category{
	CategoryObservability,
	CategoryAuthN,
	CategoryAuthZ,
	CategoryRateLimiting,
	CategoryValidation,
	CategoryContent,
}

// PropsForCategory returns properties for a category. Unknown categories fall
// back to a conservative default (serial, no mutation, no short-circuit).
func PropsForCategory(c Category) CategoryProperties {
	if p, ok := categoryProps[c]; ok {
		return p
	}
	return CategoryProperties{Mode: ExecSerial}
}
