package task

import "encoding/json"

// Task is a feed notification in the shape it is appended to a Redis stream.
type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue provides a common implementation for TaskValue
func DefaultTaskValue(task any) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T Task](task []byte) (T, error) {
	var t T
	err := json.Unmarshal(task, &t)
	return t, err
}

// StreamName is the Redis stream a task of this type is appended to.
func StreamName(prefix string, t Task) string {
	return prefix + t.TaskType()
}
