// Package budget bounds calls to the costly external research operation. A
// single Guard is shared by every stage of a pipeline run; scopes narrow the
// ceiling for one region of work (one stage task, one vendor) so that no
// single task can drain the run-wide quota on its own.
package budget
