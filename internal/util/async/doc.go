// Package async provides bounded parallel task execution with per-task
// error collection.
//
// [Run] executes independent operations with at most a given number in
// flight and reports every task's outcome. A failing task never cancels its
// siblings. It is used to fan out per-region stack deployments.
package async
