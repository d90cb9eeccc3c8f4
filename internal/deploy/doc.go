// Package deploy submits CloudFormation stacks into member accounts and
// waits for them to settle.
//
// A [Driver] creates one stack per [JobSpec] and polls its status on a
// fixed interval after an initial grace period. Polling is bounded by a
// hard timeout; a stack still in progress at the deadline is reported as
// timed out and left running.
package deploy
