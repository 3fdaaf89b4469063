package kernel

import "fmt"

// Validate checks the interrupt-safe invariants the core maintains:
// exactly one Running task and it is the current one, the idle task is
// not a Zombie, and every open-file reference count equals the number
// of descriptor-table entries pointing at the slot across all tasks.
// Queue membership is checked structurally by the queue owners' tests.
func (k *Kernel) Validate() error {
	k.intr.Lock()
	defer k.intr.Unlock()

	running := 0
	for _, t := range k.tasks {
		if t == nil {
			continue
		}
		if t.state == StateRunning {
			running++
			if t != k.cur {
				return fmt.Errorf("task %d Running but not current", t.id)
			}
		}
	}
	if running != 1 {
		return fmt.Errorf("%d tasks Running, want exactly 1", running)
	}
	if k.tasks[0] == nil || k.tasks[0].state == StateZombie {
		return fmt.Errorf("idle task corrupted")
	}

	refs := make([]int, len(k.files))
	for _, t := range k.tasks {
		if t == nil || t.state == StateFree {
			continue
		}
		for _, slot := range t.fds {
			if slot != fdFree {
				refs[slot]++
			}
		}
	}
	for i := range k.files {
		f := &k.files[i]
		if f.tag == TagFree {
			if refs[i] != 0 {
				return fmt.Errorf("free open-file slot %d referenced by %d descriptors", i, refs[i])
			}
			continue
		}
		// The kernel holds one base reference on each boot-time
		// console slot.
		base := 0
		for _, cs := range k.consoleSlots {
			if cs == i {
				base = 1
				break
			}
		}
		if f.refs < 1 {
			return fmt.Errorf("open-file slot %d live with refcount %d", i, f.refs)
		}
		if f.refs != refs[i]+base {
			return fmt.Errorf("open-file slot %d refcount %d but %d descriptors point at it", i, f.refs, refs[i])
		}
	}
	return nil
}

// TaskByID returns the live task with the given id, or nil.
func (k *Kernel) TaskByID(pid int) *Task {
	k.intr.Lock()
	defer k.intr.Unlock()
	return k.taskByID(pid)
}

// StateOf reports a task's state under the intr gate.
func (k *Kernel) StateOf(t *Task) State {
	k.intr.Lock()
	defer k.intr.Unlock()
	return t.state
}
