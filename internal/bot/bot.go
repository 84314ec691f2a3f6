package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
	"github.com/bekhruz1723-collab/sTaskManager/internal/service"
)

type conversationStage int

const (
	stageIdle conversationStage = iota
	stageLoginUsername
	stageLoginPassword
	stageRegisterUsername
	stageRegisterPassword
	stageTitle
	stageDescription
	stagePriority
	stageDeadline
	stageSubtasks
)

const (
	cbAuthLogin    = "auth:login"
	cbAuthRegister = "auth:register"
	cbMenuTasks    = "menu:tasks"
	cbMenuAdd      = "menu:add"
	cbMenuStats    = "menu:stats"
	cbMenuLogout   = "menu:logout"
	cbMenuMain     = "menu:main"
	cbTaskPrefix   = "task:"
	cbPagePrefix   = "page:"
	cbTogglePrefix = "toggle:"
	cbSubPrefix    = "togglesub:"
	cbDeletePrefix     = "delete:"
	cbConfirmDelPrefix = "confirmdel:"
	cbStatsPrefix      = "stats:"
)

const (
	btnSkip         = "⏭️ Пропустить"
	btnDone         = "✅ Готово"
	btnCancelDialog = "⏪ Отменить ввод"
	btnPriorityLow  = "🟢 Низкий"
	btnPriorityMed  = "🟡 Средний"
	btnPriorityHigh = "🔴 Высокий"
)

const tasksPerPage = 5

// msgSomethingWrong is all a chat ever learns about a storage failure;
// the details go to the log.
const msgSomethingWrong = "⚠️ Что-то пошло не так. Попробуй ещё раз позже."

// chatSession keeps the per-chat conversation and the authenticated
// account. Authentication lives only in bot memory; restarting the bot
// logs everyone out, the store is untouched.
type chatSession struct {
	stage    conversationStage
	userID   uint
	username string
	pending  string // username collected while waiting for the password
	input    service.TaskInput
}

// Bot is the Telegram front end over the shared services.
type Bot struct {
	api      *tgbotapi.BotAPI
	authSvc  *service.AuthService
	taskSvc  *service.TaskService
	statsSvc *service.StatsService
	sessions map[int64]*chatSession
	mu       sync.Mutex
}

func New(token string, authSvc *service.AuthService, taskSvc *service.TaskService, statsSvc *service.StatsService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		authSvc:  authSvc,
		taskSvc:  taskSvc,
		statsSvc: statsSvc,
		sessions: make(map[int64]*chatSession),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	sess := b.session(msg.Chat.ID)

	if !msg.IsCommand() && isCancelInput(msg.Text) {
		b.resetStage(sess)
		if sess.userID == 0 {
			return b.sendAuthChoice(msg.Chat.ID)
		}
		return b.sendMainMenu(msg.Chat.ID, "⏪ Ввод отменён.")
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg, sess)
	}

	if sess.stage != stageIdle {
		return b.handleConversation(ctx, msg, sess)
	}

	return b.sendText(msg.Chat.ID, "Я не понял сообщение. Набери /start для меню или /help для подсказок.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, sess *chatSession) error {
	switch msg.Command() {
	case "start":
		b.resetStage(sess)
		if sess.userID == 0 {
			return b.sendAuthChoice(msg.Chat.ID)
		}
		return b.sendMainMenu(msg.Chat.ID, fmt.Sprintf("👋 С возвращением, %s!", escape(sess.username)))
	case "help":
		return b.handleHelp(msg)
	case "tasks":
		if sess.userID == 0 {
			return b.sendAuthChoice(msg.Chat.ID)
		}
		return b.sendTaskPage(ctx, msg.Chat.ID, sess, 0, 0)
	case "newtask":
		if sess.userID == 0 {
			return b.sendAuthChoice(msg.Chat.ID)
		}
		return b.startAddTask(msg.Chat.ID, sess)
	case "stats":
		if sess.userID == 0 {
			return b.sendAuthChoice(msg.Chat.ID)
		}
		return b.sendStatsMenu(msg.Chat.ID, 0)
	case "logout":
		b.clearSession(msg.Chat.ID)
		return b.sendAuthChoice(msg.Chat.ID)
	case "cancel":
		b.resetStage(sess)
		return b.sendText(msg.Chat.ID, "⏪ Текущий ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /start — главное меню (вход или регистрация)\n" +
		"• /tasks — список задач с подзадачами\n" +
		"• /newtask — добавить задачу пошагово\n" +
		"• /stats — статистика продуктивности\n" +
		"• /logout — выйти из аккаунта\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, sess *chatSession) error {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	switch sess.stage {
	case stageLoginUsername, stageRegisterUsername:
		sess.pending = text
		if sess.stage == stageLoginUsername {
			sess.stage = stageLoginPassword
		} else {
			sess.stage = stageRegisterPassword
		}
		return b.sendWithReplyMarkup(chatID, "🔑 Теперь пароль:", cancelKeyboard())

	case stageLoginPassword:
		user, err := b.authSvc.Login(ctx, sess.pending, text)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				b.resetStage(sess)
				return b.sendAuthChoiceWithText(chatID, "❌ Неверное имя пользователя или пароль.")
			}
			log.Printf("login chat=%d: %v", chatID, err)
			return b.sendText(chatID, msgSomethingWrong)
		}
		b.resetStage(sess)
		b.setUser(sess, user.ID, user.Username)
		log.Printf("[info] login user=%d chat=%d", user.ID, chatID)
		return b.sendMainMenu(chatID, fmt.Sprintf("✅ Добро пожаловать, %s!", escape(user.Username)))

	case stageRegisterPassword:
		user, err := b.authSvc.Register(ctx, sess.pending, text)
		switch {
		case err == nil:
			b.resetStage(sess)
			b.setUser(sess, user.ID, user.Username)
			log.Printf("[info] register user=%d chat=%d", user.ID, chatID)
			return b.sendMainMenu(chatID, fmt.Sprintf("🎉 Аккаунт создан. Привет, %s!", escape(user.Username)))
		case errors.Is(err, service.ErrPasswordTooShort):
			return b.sendWithReplyMarkup(chatID, "Пароль должен быть не короче 8 символов. Попробуй ещё раз:", cancelKeyboard())
		case errors.Is(err, service.ErrUsernameTaken):
			b.resetStage(sess)
			return b.sendAuthChoiceWithText(chatID, "❌ Такое имя пользователя уже занято.")
		case errors.Is(err, service.ErrUsernameRequired):
			b.resetStage(sess)
			return b.sendAuthChoiceWithText(chatID, "❌ Имя пользователя не может быть пустым.")
		default:
			log.Printf("register chat=%d: %v", chatID, err)
			return b.sendText(chatID, msgSomethingWrong)
		}

	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(chatID, "Название не может быть пустым. Как назвать задачу?", cancelKeyboard())
		}
		sess.input.Title = text
		sess.stage = stageDescription
		return b.sendWithReplyMarkup(chatID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())

	case stageDescription:
		if !isSkipInput(text) {
			sess.input.Description = text
		}
		sess.stage = stagePriority
		return b.sendWithReplyMarkup(chatID, "🎯 Выбери приоритет:", priorityKeyboard())

	case stagePriority:
		sess.input.Priority = priorityFromButton(text)
		sess.stage = stageDeadline
		return b.sendWithReplyMarkup(chatID, "⏰ Укажи дедлайн в формате <code>2026-09-30</code> (или «Пропустить»).", skipKeyboard())

	case stageDeadline:
		if !isSkipInput(text) {
			parsed, err := time.Parse("2006-01-02", text)
			if err != nil {
				return b.sendWithReplyMarkup(chatID, "Не могу распознать дату. Используй формат <code>2026-09-30</code> или «Пропустить».", skipKeyboard())
			}
			sess.input.Deadline = &parsed
		}
		sess.stage = stageSubtasks
		return b.sendWithReplyMarkup(chatID, "📌 Отправляй подзадачи по одной строке. Нажми «Готово», когда закончишь, или «Пропустить», если подзадачи не нужны.", subtaskKeyboard())

	case stageSubtasks:
		if !isSkipInput(text) && !isDoneInput(text) {
			sess.input.Subtasks = append(sess.input.Subtasks, text)
			return b.sendWithReplyMarkup(chatID, fmt.Sprintf("Добавил «%s». Ещё одну или «Готово»?", escape(text)), subtaskKeyboard())
		}
		return b.finishAddTask(ctx, chatID, sess)

	default:
		b.resetStage(sess)
		return b.sendText(chatID, "Диалог сброшен. Попробуй ещё раз через /start.")
	}
}

func (b *Bot) startAddTask(chatID int64, sess *chatSession) error {
	sess.stage = stageTitle
	sess.input = service.TaskInput{}
	return b.sendWithReplyMarkup(chatID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard())
}

func (b *Bot) finishAddTask(ctx context.Context, chatID int64, sess *chatSession) error {
	input := sess.input
	b.resetStage(sess)

	task, err := b.taskSvc.CreateTask(ctx, sess.userID, input)
	if err != nil {
		if errors.Is(err, service.ErrTitleRequired) {
			return b.sendText(chatID, "Название не может быть пустым.")
		}
		log.Printf("create task for chat %d: %v", chatID, err)
		return b.sendText(chatID, msgSomethingWrong)
	}

	log.Printf("[info] task created id=%d user=%d subtasks=%d", task.ID, sess.userID, len(input.Subtasks))

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(task.Title)))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Приоритет:</b> %s %s\n", priorityIcon(task.Priority), priorityLabel(task.Priority)))
	if task.Deadline != nil {
		summary.WriteString(fmt.Sprintf("• <b>Дедлайн:</b> %s\n", task.Deadline.Format("2006-01-02")))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendTaskPage(ctx, chatID, sess, 0, 0)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	chatID := cb.Message.Chat.ID
	sess := b.session(chatID)
	data := cb.Data

	// auth callbacks work without a logged-in session
	switch data {
	case cbAuthLogin:
		sess.stage = stageLoginUsername
		return b.sendWithReplyMarkup(chatID, "👤 Введи имя пользователя:", cancelKeyboard())
	case cbAuthRegister:
		sess.stage = stageRegisterUsername
		return b.sendWithReplyMarkup(chatID, "👤 Придумай имя пользователя:", cancelKeyboard())
	}

	if sess.userID == 0 {
		return b.sendAuthChoice(chatID)
	}

	switch {
	case data == cbMenuMain:
		return b.sendMainMenu(chatID, "🔹 Главное меню")
	case data == cbMenuTasks:
		return b.sendTaskPage(ctx, chatID, sess, 0, cb.Message.MessageID)
	case data == cbMenuAdd:
		return b.startAddTask(chatID, sess)
	case data == cbMenuStats:
		return b.sendStatsMenu(chatID, cb.Message.MessageID)
	case data == cbMenuLogout:
		b.clearSession(chatID)
		return b.sendAuthChoiceWithText(chatID, "👋 Ты вышел из аккаунта.")
	case strings.HasPrefix(data, cbPagePrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(data, cbPagePrefix))
		if err != nil {
			return nil
		}
		return b.sendTaskPage(ctx, chatID, sess, page, cb.Message.MessageID)
	case strings.HasPrefix(data, cbTaskPrefix):
		id, err := parseTaskID(data, cbTaskPrefix)
		if err != nil {
			return nil
		}
		return b.sendTaskDetail(ctx, chatID, sess, id, cb.Message.MessageID)
	case strings.HasPrefix(data, cbTogglePrefix):
		id, err := parseTaskID(data, cbTogglePrefix)
		if err != nil {
			return nil
		}
		if _, err := b.taskSvc.ToggleRoot(ctx, sess.userID, id); err != nil {
			return b.replyMutationError(chatID, err)
		}
		log.Printf("[info] task toggled id=%d user=%d", id, sess.userID)
		return b.sendTaskDetail(ctx, chatID, sess, id, cb.Message.MessageID)
	case strings.HasPrefix(data, cbSubPrefix):
		id, err := parseTaskID(data, cbSubPrefix)
		if err != nil {
			return nil
		}
		sub, err := b.taskSvc.GetTask(ctx, id)
		if err != nil {
			return b.replyMutationError(chatID, err)
		}
		if _, err := b.taskSvc.ToggleSubtask(ctx, sess.userID, id); err != nil {
			return b.replyMutationError(chatID, err)
		}
		if sub.IsRoot() {
			return b.sendTaskPage(ctx, chatID, sess, 0, cb.Message.MessageID)
		}
		return b.sendTaskDetail(ctx, chatID, sess, *sub.ParentID, cb.Message.MessageID)
	case strings.HasPrefix(data, cbDeletePrefix):
		id, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		// a root delete takes the subtasks along, so ask first
		return b.sendOrEdit(chatID, cb.Message.MessageID,
			"❗️ Удалить задачу вместе с подзадачами? Это действие нельзя отменить.",
			confirmDeleteKeyboard(id))
	case strings.HasPrefix(data, cbConfirmDelPrefix):
		id, err := parseTaskID(data, cbConfirmDelPrefix)
		if err != nil {
			return nil
		}
		if err := b.taskSvc.DeleteTask(ctx, sess.userID, id); err != nil {
			return b.replyMutationError(chatID, err)
		}
		log.Printf("[info] task deleted id=%d user=%d", id, sess.userID)
		if err := b.sendText(chatID, "🗑 Задача удалена."); err != nil {
			return err
		}
		return b.sendTaskPage(ctx, chatID, sess, 0, 0)
	case strings.HasPrefix(data, cbStatsPrefix):
		period, ok := service.ParsePeriod(strings.TrimPrefix(data, cbStatsPrefix))
		if !ok {
			return nil
		}
		return b.sendStats(ctx, chatID, sess, period, cb.Message.MessageID)
	default:
		return nil
	}
}

func (b *Bot) replyMutationError(chatID int64, err error) error {
	if !errors.Is(err, repository.ErrAccessDenied) && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("task mutation for chat %d: %v", chatID, err)
	}
	return b.sendText(chatID, mutationErrorText(err))
}

// mutationErrorText maps an error to what the chat is allowed to see.
func mutationErrorText(err error) string {
	switch {
	case errors.Is(err, repository.ErrAccessDenied):
		return "Задача не найдена или принадлежит не тебе."
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "Задача не найдена."
	default:
		return msgSomethingWrong
	}
}

func (b *Bot) sendTaskPage(ctx context.Context, chatID int64, sess *chatSession, page, editMessageID int) error {
	tasks, err := b.taskSvc.ListTasks(ctx, sess.userID)
	if err != nil {
		log.Printf("list tasks for chat %d: %v", chatID, err)
		return b.sendText(chatID, msgSomethingWrong)
	}

	if len(tasks) == 0 {
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("➕ Новая задача", cbMenuAdd),
				tgbotapi.NewInlineKeyboardButtonData("↩️ Меню", cbMenuMain),
			),
		)
		return b.sendOrEdit(chatID, editMessageID, "У тебя пока нет задач. Добавь первую!", markup)
	}

	totalPages := (len(tasks) + tasksPerPage - 1) / tasksPerPage
	if page < 0 {
		page = 0
	}
	if page > totalPages-1 {
		page = totalPages - 1
	}
	start := page * tasksPerPage
	end := start + tasksPerPage
	if end > len(tasks) {
		end = len(tasks)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Мои задачи</b> (стр. %d/%d)\n\n", page+1, totalPages))

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks[start:end] {
		builder.WriteString(fmt.Sprintf("%s %s <b>%s</b>\n", statusIcon(task.ComputedStatus), priorityIcon(task.Priority), escape(task.Title)))
		if task.Description != "" {
			builder.WriteString(fmt.Sprintf("   <i>%s</i>\n", escape(shortText(task.Description, 50))))
		}
		if len(task.Subtasks) > 0 {
			done := 0
			for _, st := range task.Subtasks {
				if st.Status == model.StatusDone {
					done++
				}
			}
			builder.WriteString(fmt.Sprintf("   📌 %d/%d\n", done, len(task.Subtasks)))
		}
		builder.WriteByte('\n')

		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", statusIcon(task.ComputedStatus), shortText(task.Title, 30)),
				fmt.Sprintf("%s%d", cbTaskPrefix, task.ID),
			),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("%s%d", cbPagePrefix, page-1)))
	}
	if page < totalPages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("%s%d", cbPagePrefix, page+1)))
	}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}
	buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("↩️ Меню", cbMenuMain),
	))

	return b.sendOrEdit(chatID, editMessageID, strings.TrimSpace(builder.String()), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) sendTaskDetail(ctx context.Context, chatID int64, sess *chatSession, taskID uint, editMessageID int) error {
	view, err := b.taskSvc.GetTaskView(ctx, sess.userID, taskID)
	if err != nil {
		return b.replyMutationError(chatID, err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%s <b>%s</b>\n\n", statusIcon(view.ComputedStatus), escape(view.Title)))
	if view.Description != "" {
		builder.WriteString(fmt.Sprintf("📄 %s\n", escape(view.Description)))
	}
	builder.WriteString(fmt.Sprintf("🎯 Приоритет: %s %s\n", priorityIcon(view.Priority), priorityLabel(view.Priority)))
	if view.Deadline != nil {
		builder.WriteString(fmt.Sprintf("📅 Дедлайн: %s\n", view.Deadline.Format("2006-01-02")))
	}
	builder.WriteString(fmt.Sprintf("🕓 Создана: %s\n", view.CreatedAt.Format("2006-01-02")))

	var buttons [][]tgbotapi.InlineKeyboardButton
	if len(view.Subtasks) > 0 {
		builder.WriteString("\n📌 <b>Подзадачи</b>\n")
		for _, sub := range view.Subtasks {
			builder.WriteString(fmt.Sprintf("  %s %s\n", statusIcon(sub.Status), escape(sub.Title)))
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("%s %s", statusIcon(sub.Status), shortText(sub.Title, 25)),
					fmt.Sprintf("%s%d", cbSubPrefix, sub.ID),
				),
			))
		}
	}

	buttons = append(buttons,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Сменить статус", fmt.Sprintf("%s%d", cbTogglePrefix, view.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", fmt.Sprintf("%s%d", cbDeletePrefix, view.ID)),
			tgbotapi.NewInlineKeyboardButtonData("↩️ К списку", cbMenuTasks),
		),
	)

	return b.sendOrEdit(chatID, editMessageID, strings.TrimSpace(builder.String()), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) sendStatsMenu(chatID int64, editMessageID int) error {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕐 Часы", cbStatsPrefix+"hour"),
			tgbotapi.NewInlineKeyboardButtonData("📅 Дни", cbStatsPrefix+"day"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📆 Недели", cbStatsPrefix+"week"),
			tgbotapi.NewInlineKeyboardButtonData("🗓 Месяцы", cbStatsPrefix+"month"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 Годы", cbStatsPrefix+"year"),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Меню", cbMenuMain),
		),
	)
	return b.sendOrEdit(chatID, editMessageID, "📊 За какой период показать статистику?", markup)
}

func (b *Bot) sendStats(ctx context.Context, chatID int64, sess *chatSession, period service.Period, editMessageID int) error {
	stats, err := b.statsSvc.Statistics(ctx, sess.userID, period, time.Now())
	if err != nil {
		log.Printf("build stats for chat %d: %v", chatID, err)
		return b.sendText(chatID, msgSomethingWrong)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📊 <b>Статистика</b> · %s\n\n", periodLabel(period)))
	builder.WriteString(fmt.Sprintf("📋 Всего задач: <b>%d</b>\n", stats.Total))
	builder.WriteString(fmt.Sprintf("✅ Выполнено: <b>%d</b>\n", stats.Status.Done))
	builder.WriteString(fmt.Sprintf("⏳ В процессе: <b>%d</b>\n", stats.Status.InProgress))
	builder.WriteString(fmt.Sprintf("📭 Не начато: <b>%d</b>\n\n", stats.Status.NotStarted))

	builder.WriteString("🎯 <b>Приоритеты</b>\n")
	builder.WriteString(fmt.Sprintf("🟢 Низкий: %d\n", stats.Priorities[string(model.PriorityLow)]))
	builder.WriteString(fmt.Sprintf("🟡 Средний: %d\n", stats.Priorities[string(model.PriorityMedium)]))
	builder.WriteString(fmt.Sprintf("🔴 Высокий: %d\n", stats.Priorities[string(model.PriorityHigh)]))

	if len(stats.Productivity) > 0 {
		builder.WriteString("\n📈 <b>Продуктивность</b>\n")
		series := stats.Productivity
		if len(series) > 5 {
			series = series[len(series)-5:]
		}
		for _, bucket := range series {
			builder.WriteString(fmt.Sprintf("<code>%s</code> %s %d\n", bucket.Period, strings.Repeat("█", bucket.Count), bucket.Count))
		}
	}

	if len(stats.TopPeriods) > 0 {
		builder.WriteString("\n🏆 <b>Лучшие периоды</b>\n")
		for i, bucket := range stats.TopPeriods {
			medal := fmt.Sprintf("%d.", i+1)
			switch i {
			case 0:
				medal = "🥇"
			case 1:
				medal = "🥈"
			case 2:
				medal = "🥉"
			}
			builder.WriteString(fmt.Sprintf("%s %s: <b>%d</b>\n", medal, bucket.Period, bucket.Count))
		}
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Другой период", cbMenuStats),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Меню", cbMenuMain),
		),
	)
	return b.sendOrEdit(chatID, editMessageID, strings.TrimSpace(builder.String()), markup)
}

// SendReports pushes a short summary to every chat with a logged-in user.
func (b *Bot) SendReports(ctx context.Context) error {
	for chatID, userID := range b.loggedInChats() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stats, err := b.statsSvc.Statistics(ctx, userID, service.PeriodDay, time.Now())
		if err != nil {
			log.Printf("build report for chat %d: %v", chatID, err)
			continue
		}

		open := stats.Status.NotStarted + stats.Status.InProgress
		text := fmt.Sprintf(
			"📬 <b>Сводка</b>\n📋 Открытых задач: <b>%d</b>\n✅ Выполнено всего: <b>%d</b>",
			open, stats.Status.Done,
		)
		if err := b.sendText(chatID, text); err != nil {
			log.Printf("send report to %d: %v", chatID, err)
		}
	}
	return nil
}

func (b *Bot) loggedInChats() map[int64]uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]uint)
	for chatID, sess := range b.sessions {
		if sess.userID != 0 {
			out[chatID] = sess.userID
		}
	}
	return out
}

func (b *Bot) sendAuthChoice(chatID int64) error {
	return b.sendAuthChoiceWithText(chatID, "👋 Это трекер задач. Войди или зарегистрируйся, чтобы продолжить.")
}

func (b *Bot) sendAuthChoiceWithText(chatID int64, text string) error {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Войти", cbAuthLogin),
			tgbotapi.NewInlineKeyboardButtonData("📝 Регистрация", cbAuthRegister),
		),
	)
	return b.sendWithReplyMarkup(chatID, text, markup)
}

func (b *Bot) sendMainMenu(chatID int64, text string) error {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Мои задачи", cbMenuTasks),
			tgbotapi.NewInlineKeyboardButtonData("➕ Новая задача", cbMenuAdd),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", cbMenuStats),
			tgbotapi.NewInlineKeyboardButtonData("🚪 Выйти", cbMenuLogout),
		),
	)
	return b.sendWithReplyMarkup(chatID, text, markup)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// sendOrEdit edits the message in place when a message id is known, so
// menu navigation does not flood the chat.
func (b *Bot) sendOrEdit(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	if messageID == 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = markup
		_, err := b.api.Send(msg)
		return err
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		// editing fails when the content did not change; fall back to a new message
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = markup
		_, err = b.api.Send(msg)
		return err
	}
	return nil
}

func (b *Bot) session(chatID int64) *chatSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[chatID]
	if !ok {
		sess = &chatSession{}
		b.sessions[chatID] = sess
	}
	return sess
}

// setUser records the authenticated account under the mutex; the report
// job reads these fields from its own goroutine.
func (b *Bot) setUser(sess *chatSession, id uint, username string) {
	b.mu.Lock()
	sess.userID = id
	sess.username = username
	b.mu.Unlock()
}

func (b *Bot) clearSession(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, chatID)
}

func (b *Bot) resetStage(sess *chatSession) {
	sess.stage = stageIdle
	sess.pending = ""
	sess.input = service.TaskInput{}
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func confirmDeleteKeyboard(id uint) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Да, удалить", fmt.Sprintf("%s%d", cbConfirmDelPrefix, id)),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Отмена", fmt.Sprintf("%s%d", cbTaskPrefix, id)),
		),
	)
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func subtaskKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDone),
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnPriorityLow),
			tgbotapi.NewKeyboardButton(btnPriorityMed),
			tgbotapi.NewKeyboardButton(btnPriorityHigh),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityFromButton(text string) model.Priority {
	switch strings.TrimSpace(text) {
	case btnPriorityLow:
		return model.PriorityLow
	case btnPriorityHigh:
		return model.PriorityHigh
	default:
		return model.PriorityMedium
	}
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isDoneInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnDone) || value == "готово" || value == "done"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод" || value == "отмена"
}

func statusIcon(status model.Status) string {
	switch status {
	case model.StatusDone:
		return "✅"
	case model.StatusInProgress:
		return "⏳"
	default:
		return "📋"
	}
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityLow:
		return "🟢"
	case model.PriorityHigh:
		return "🔴"
	default:
		return "🟡"
	}
}

func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityLow:
		return "низкий"
	case model.PriorityHigh:
		return "высокий"
	default:
		return "средний"
	}
}

func periodLabel(p service.Period) string {
	switch p {
	case service.PeriodHour:
		return "по часам"
	case service.PeriodDay:
		return "по дням"
	case service.PeriodWeek:
		return "по неделям"
	case service.PeriodMonth:
		return "по месяцам"
	default:
		return "по годам"
	}
}

func shortText(text string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
