package interactions

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/generator"
)

// CustomID joins a component prefix and a flow instance into the
// "prefix:instance" form understood by InstanceIDFromCustomID.
func CustomID(prefix, instanceID string) string {
	return prefix + ":" + instanceID
}

func InstanceIDFromInteraction(i *discordgo.Interaction) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

func InstanceIDFromCustomID(customID string) string {
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return ""
	}

	return parts[1]
}

// CustomIDPrefix returns the part of customID before the first colon.
func CustomIDPrefix(customID string) string {
	prefix, _, _ := strings.Cut(customID, ":")
	return prefix
}

// FlowContext is carried across the steps of one flow instance.
type FlowContext struct {
	InstanceID string
	State      map[string]any
}

type Node struct {
	ID      string
	Matcher func(*discordgo.Interaction) bool
	Handler func(*Context, *FlowContext) error
	Next    []*Node
}

// Flow is a tree of interaction steps. The root is matched against
// interactions that are not part of a running instance.
type Flow struct {
	ID   string
	Root *Node
}

type flowSession struct {
	flow    *Flow
	node    *Node
	ctx     *FlowContext
	touched time.Time
}

type FlowManager struct {
	flowsMu sync.RWMutex
	flows   []*Flow

	sessionsMu sync.RWMutex
	sessions   map[string]*flowSession

	idGenerator generator.Generator[string]
	now         func() time.Time
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		sessions:    make(map[string]*flowSession),
		idGenerator: idGenerator,
		now:         time.Now,
	}
}

// DuplicateFlowError is returned when a flow ID is registered twice.
type DuplicateFlowError struct {
	ID string
}

func (e *DuplicateFlowError) Error() string {
	return fmt.Sprintf("flow %q is already registered", e.ID)
}

var _ error = (*DuplicateFlowError)(nil)

// RegisterFlow adds a flow. Roots are tried in registration order.
func (fm *FlowManager) RegisterFlow(flow *Flow) error {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	for _, f := range fm.flows {
		if f.ID == flow.ID {
			return &DuplicateFlowError{ID: flow.ID}
		}
	}
	fm.flows = append(fm.flows, flow)
	return nil
}

// Active returns the number of running flow instances.
func (fm *FlowManager) Active() int {
	fm.sessionsMu.RLock()
	defer fm.sessionsMu.RUnlock()
	return len(fm.sessions)
}

// Route advances the instance named by the interaction's custom ID, or
// starts the first flow whose root matches. It reports whether a handler ran.
func (fm *FlowManager) Route(c *Context) (bool, error) {
	instanceID := InstanceIDFromInteraction(c.Interaction)
	if instanceID != "" {
		fm.sessionsMu.RLock()
		sess, inFlow := fm.sessions[instanceID]
		fm.sessionsMu.RUnlock()
		if inFlow {
			return fm.advance(c, sess)
		}
	}

	return fm.initializeFlow(c)
}

func (fm *FlowManager) finish(instanceID string) {
	fm.sessionsMu.Lock()
	delete(fm.sessions, instanceID)
	fm.sessionsMu.Unlock()
}

func (fm *FlowManager) advance(c *Context, sess *flowSession) (bool, error) {
	fm.sessionsMu.Lock()
	current := sess.node
	sess.touched = fm.now()
	fm.sessionsMu.Unlock()

	if len(current.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
		return false, nil
	}

	var nextNode *Node
	for _, n := range current.Next {
		if n.Matcher(c.Interaction) {
			nextNode = n
			break
		}
	}
	if nextNode == nil {
		return false, nil
	}

	fm.sessionsMu.Lock()
	sess.node = nextNode
	fm.sessionsMu.Unlock()

	err := nextNode.Handler(c, sess.ctx)
	if len(nextNode.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
	}
	return true, err
}

func (fm *FlowManager) initializeFlow(c *Context) (bool, error) {
	fm.flowsMu.RLock()
	var f *Flow
	for _, flow := range fm.flows {
		if flow.Root.Matcher(c.Interaction) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return false, nil
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return false, fmt.Errorf("failed to generate instance ID: %w", err)
	}

	flowCtx := &FlowContext{
		InstanceID: instanceID,
		State:      make(map[string]any),
	}
	if len(f.Root.Next) > 0 {
		fm.sessionsMu.Lock()
		fm.sessions[instanceID] = &flowSession{flow: f, node: f.Root, ctx: flowCtx, touched: fm.now()}
		fm.sessionsMu.Unlock()
	}

	return true, f.Root.Handler(c, flowCtx)
}

// Prune drops instances that have not advanced within maxAge and returns
// how many were removed.
func (fm *FlowManager) Prune(maxAge time.Duration) int {
	cutoff := fm.now().Add(-maxAge)

	fm.sessionsMu.Lock()
	defer fm.sessionsMu.Unlock()

	removed := 0
	for id, sess := range fm.sessions {
		if sess.touched.Before(cutoff) {
			delete(fm.sessions, id)
			removed++
		}
	}
	return removed
}
