package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ilkoid/poncho-assistants/pkg/events"
)

// EventMsg - событие run'а, завернутое в Bubble Tea сообщение.
type EventMsg events.Event

// subscriberClosedMsg приходит когда канал подписчика закрыт.
type subscriberClosedMsg struct{}

// ReceiveEventCmd возвращает Cmd, который ждёт следующего события из Subscriber.
//
// После обработки события Update должен снова вернуть этот Cmd, иначе чтение
// остановится.
func ReceiveEventCmd(sub events.Subscriber) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub.Events()
		if !ok {
			return subscriberClosedMsg{}
		}
		return EventMsg(event)
	}
}
